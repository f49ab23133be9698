package apply

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/bogem/id3v2"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"

	"github.com/grrywlsn/retag/logging"
	"github.com/grrywlsn/retag/matcher"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// minimalFLAC returns a stream marker, an empty STREAMINFO block and a few
// bytes standing in for audio frames.
func minimalFLAC() []byte {
	var buf bytes.Buffer
	buf.WriteString("fLaC")
	buf.Write([]byte{0x80, 0x00, 0x00, 34})
	buf.Write(make([]byte, 34))
	buf.Write([]byte{0xff, 0xf8, 0x01, 0x02})
	return buf.Bytes()
}

// fakeMP3 is enough for id3v2 to treat the file as untagged audio.
func fakeMP3() []byte {
	return bytes.Repeat([]byte{0xff, 0xfb, 0x90, 0x00}, 32)
}

type recordingWriter struct {
	paths []string
	tags  []Tags
}

func (w *recordingWriter) WriteTags(path string, tags Tags) error {
	w.paths = append(w.paths, path)
	w.tags = append(w.tags, tags)
	return nil
}

func TestTrackFileName(t *testing.T) {
	tests := []struct {
		number   int
		title    string
		ext      string
		expected string
	}{
		{1, "First Song", ".mp3", "01. First Song.mp3"},
		{12, "AC/DC: Live?", ".flac", "12. AC_DC_ Live_.flac"},
		{100, "Long", ".ogg", "100. Long.ogg"},
		{3, "  Trailing dots... ", ".wav", "03. Trailing dots.wav"},
	}

	for _, test := range tests {
		if got := TrackFileName(test.number, test.title, test.ext); got != test.expected {
			t.Errorf("TrackFileName(%d, %q, %q) = %q, expected %q", test.number, test.title, test.ext, got, test.expected)
		}
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Plain", "Plain"},
		{"a<b>c", "a_b_c"},
		{"tab\there", "tab_here"},
		{"...", "_"},
		{"", "_"},
		{"Café", "Café"},
	}

	for _, test := range tests {
		if got := SanitizeFileName(test.input); got != test.expected {
			t.Errorf("SanitizeFileName(%q) = %q, expected %q", test.input, got, test.expected)
		}
	}
}

func TestDeepestFirst(t *testing.T) {
	dirs := []string{
		filepath.Join("music", "a"),
		filepath.Join("music", "a", "cd1"),
		filepath.Join("music", "b"),
		filepath.Join("music", "a", "cd1", "extra"),
	}
	expected := []string{
		filepath.Join("music", "a", "cd1", "extra"),
		filepath.Join("music", "a", "cd1"),
		filepath.Join("music", "a"),
		filepath.Join("music", "b"),
	}
	if got := DeepestFirst(dirs); !slices.Equal(got, expected) {
		t.Errorf("DeepestFirst() = %v, expected %v", got, expected)
	}
}

func TestApplyDryRunTouchesNothing(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "band - ep")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	old := filepath.Join(dir, "band - ep - 01 - first.mp3")
	writeFile(t, old, fakeMP3())

	output := matcher.OutputRoot{
		Album:      "Band EP",
		Performers: []string{"Band"},
		Tracks:     []matcher.MatchedTrack{{Path: old, TrackNumber: 1, Title: "First Song"}},
	}

	result, err := New(true, logging.NewNop()).Apply(dir, output)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !result.DryRun {
		t.Error("Expected result to be marked as dry run")
	}
	if result.NewDir != filepath.Join(root, "Band EP") {
		t.Errorf("Expected proposed directory rename, got %q", result.NewDir)
	}
	if got := result.Tracks[0].NewPath; got != filepath.Join(dir, "01. First Song.mp3") {
		t.Errorf("Unexpected proposed path %q", got)
	}
	if !result.Changed() {
		t.Error("Expected dry run result to report changes")
	}
	if !exists(old) || exists(result.NewDir) {
		t.Error("Expected dry run to leave the disk untouched")
	}
}

func TestApplyRenamesAndTags(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "band - ep")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	mp3 := filepath.Join(dir, "band - ep - 01 - first.mp3")
	ogg := filepath.Join(dir, "band - ep - 02 - second.ogg")
	writeFile(t, mp3, fakeMP3())
	writeFile(t, ogg, []byte("OggS"))

	writer := &recordingWriter{}
	applier := New(false, logging.NewNop())
	applier.writers = map[string]TagWriter{".mp3": writer}

	output := matcher.OutputRoot{
		Album:      "Band EP",
		Performers: []string{"Band", "Guest"},
		Tracks: []matcher.MatchedTrack{
			{Path: mp3, TrackNumber: 1, Title: "First Song"},
			{Path: ogg, TrackNumber: 2, Title: "Second Song"},
		},
	}

	result, err := applier.Apply(dir, output)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	newDir := filepath.Join(root, "Band EP")
	if result.NewDir != newDir {
		t.Errorf("Expected directory %q, got %q", newDir, result.NewDir)
	}
	for _, name := range []string{"01. First Song.mp3", "02. Second Song.ogg"} {
		if !exists(filepath.Join(newDir, name)) {
			t.Errorf("Expected %s to exist after apply", name)
		}
	}
	if exists(dir) {
		t.Error("Expected old directory to be gone")
	}

	if !slices.Equal(writer.paths, []string{mp3}) {
		t.Errorf("Expected only the mp3 to be tagged, got %v", writer.paths)
	}
	tags := writer.tags[0]
	if tags.Title != "First Song" || tags.Album != "Band EP" || tags.TrackNumber != 1 || tags.TrackTotal != 2 {
		t.Errorf("Unexpected tags %+v", tags)
	}
	if result.Tracks[1].Tagged {
		t.Error("Expected ogg track not to be tagged")
	}
}

func TestApplySwapsNames(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Album")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	a := filepath.Join(dir, "01. A.wav")
	b := filepath.Join(dir, "02. B.wav")
	writeFile(t, a, []byte("a"))
	writeFile(t, b, []byte("b"))

	output := matcher.OutputRoot{
		Album: "Album",
		Tracks: []matcher.MatchedTrack{
			{Path: a, TrackNumber: 2, Title: "B"},
			{Path: b, TrackNumber: 1, Title: "A"},
		},
	}
	if _, err := New(false, logging.NewNop()).Apply(dir, output); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "02. B.wav"))
	if err != nil || string(data) != "a" {
		t.Errorf("Expected old 01 to become 02, got %q, %v", data, err)
	}
	data, err = os.ReadFile(filepath.Join(dir, "01. A.wav"))
	if err != nil || string(data) != "b" {
		t.Errorf("Expected old 02 to become 01, got %q, %v", data, err)
	}
}

func TestApplyRefusesToOverwrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Album")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "track.wav")
	writeFile(t, src, []byte("src"))
	writeFile(t, filepath.Join(dir, "01. Intro.wav"), []byte("other"))

	output := matcher.OutputRoot{
		Album:  "Album",
		Tracks: []matcher.MatchedTrack{{Path: src, TrackNumber: 1, Title: "Intro"}},
	}
	_, err := New(false, logging.NewNop()).Apply(dir, output)
	if !errors.Is(err, ErrTargetExists) {
		t.Errorf("Expected ErrTargetExists, got %v", err)
	}
	if !exists(src) {
		t.Error("Expected source to be left in place")
	}
}

func TestApplyRefusesSharedTarget(t *testing.T) {
	tests := []struct {
		name   string
		tracks func(dir string) []matcher.MatchedTrack
	}{
		{
			name: "two tracks resolve to the same entry",
			tracks: func(dir string) []matcher.MatchedTrack {
				return []matcher.MatchedTrack{
					{Path: filepath.Join(dir, "intro demo.mp3"), TrackNumber: 1, Title: "Intro"},
					{Path: filepath.Join(dir, "intro live.mp3"), TrackNumber: 1, Title: "Intro"},
				}
			},
		},
		{
			name: "target is a track keeping its name",
			tracks: func(dir string) []matcher.MatchedTrack {
				return []matcher.MatchedTrack{
					{Path: filepath.Join(dir, "01. Intro.mp3"), TrackNumber: 1, Title: "Intro"},
					{Path: filepath.Join(dir, "intro live.mp3"), TrackNumber: 1, Title: "Intro"},
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "Album")
			if err := os.Mkdir(dir, 0o755); err != nil {
				t.Fatal(err)
			}
			tracks := tt.tracks(dir)
			for _, track := range tracks {
				writeFile(t, track.Path, fakeMP3())
			}

			applier := New(false, logging.NewNop())
			writer := &recordingWriter{}
			applier.writers = map[string]TagWriter{".mp3": writer}

			_, err := applier.Apply(dir, matcher.OutputRoot{Album: "Album", Tracks: tracks})
			if !errors.Is(err, ErrTargetExists) {
				t.Errorf("Expected ErrTargetExists, got %v", err)
			}
			for _, track := range tracks {
				if !exists(track.Path) {
					t.Errorf("Expected %s to be left in place", filepath.Base(track.Path))
				}
			}
			if len(writer.paths) != 0 {
				t.Errorf("Expected no tags to be written, wrote %v", writer.paths)
			}
		})
	}
}

func TestApplyDryRunReportsSharedTarget(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Album")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	a := filepath.Join(dir, "a.wav")
	b := filepath.Join(dir, "b.wav")
	writeFile(t, a, nil)
	writeFile(t, b, nil)

	output := matcher.OutputRoot{
		Album: "Album",
		Tracks: []matcher.MatchedTrack{
			{Path: a, TrackNumber: 1, Title: "Intro"},
			{Path: b, TrackNumber: 1, Title: "Intro"},
		},
	}
	if _, err := New(true, logging.NewNop()).Apply(dir, output); !errors.Is(err, ErrTargetExists) {
		t.Errorf("Expected ErrTargetExists, got %v", err)
	}
}

func TestRenameTracksReportsStrandedFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "track.wav")
	writeFile(t, src, []byte("audio"))
	blocked := filepath.Join(dir, "01. Intro.wav")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(blocked, "keep"), nil)

	stranded, err := renameTracks([]TrackChange{{OldPath: src, NewPath: blocked}})
	if err == nil {
		t.Fatal("Expected an error renaming onto a directory")
	}
	if len(stranded) != 1 {
		t.Fatalf("Expected one stranded file, got %v", stranded)
	}
	if !strings.HasPrefix(filepath.Base(stranded[0]), ".retag-") {
		t.Errorf("Unexpected stranded path %q", stranded[0])
	}
	data, err := os.ReadFile(stranded[0])
	if err != nil || string(data) != "audio" {
		t.Errorf("Expected the track at %s, got %q, %v", stranded[0], data, err)
	}
}

func TestApplyKeepsDirectoryWhenTargetExists(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "rip")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, "Album"), 0o755); err != nil {
		t.Fatal(err)
	}
	track := filepath.Join(dir, "01. Intro.wav")
	writeFile(t, track, nil)

	output := matcher.OutputRoot{
		Album:  "Album",
		Tracks: []matcher.MatchedTrack{{Path: track, TrackNumber: 1, Title: "Intro"}},
	}
	result, err := New(false, logging.NewNop()).Apply(dir, output)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if result.NewDir != dir {
		t.Errorf("Expected directory to stay at %q, got %q", dir, result.NewDir)
	}
	if result.Changed() {
		t.Error("Expected no changes to be reported")
	}
}

func TestID3Writer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.mp3")
	writeFile(t, path, fakeMP3())

	tags := Tags{Title: "Song", Album: "Album", Performers: []string{"A", "B"}, TrackNumber: 3, TrackTotal: 10}
	if err := (id3Writer{}).WriteTags(path, tags); err != nil {
		t.Fatalf("WriteTags returned error: %v", err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer tag.Close()

	if tag.Title() != "Song" || tag.Album() != "Album" || tag.Artist() != "A; B" {
		t.Errorf("Unexpected tag values %q %q %q", tag.Title(), tag.Album(), tag.Artist())
	}
	if got := tag.GetTextFrame(tag.CommonID("Track number/Position in set")).Text; got != "3/10" {
		t.Errorf("Expected track 3/10, got %q", got)
	}
}

func TestFLACWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.flac")
	writeFile(t, path, minimalFLAC())

	first := Tags{Title: "Old", Album: "Old Album", Performers: []string{"X"}, TrackNumber: 9}
	if err := (flacWriter{}).WriteTags(path, first); err != nil {
		t.Fatalf("WriteTags returned error: %v", err)
	}
	second := Tags{Title: "Song", Album: "Album", Performers: []string{"A", "B"}, TrackNumber: 3, TrackTotal: 10}
	if err := (flacWriter{}).WriteTags(path, second); err != nil {
		t.Fatalf("WriteTags returned error: %v", err)
	}

	f, err := flac.ParseFile(path)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	var comment *flacvorbis.MetaDataBlockVorbisComment
	blocks := 0
	for _, block := range f.Meta {
		if block.Type == flac.VorbisComment {
			blocks++
			comment, err = flacvorbis.ParseFromMetaDataBlock(*block)
			if err != nil {
				t.Fatalf("parse comment: %v", err)
			}
		}
	}
	if blocks != 1 {
		t.Fatalf("Expected exactly one vorbis comment block, got %d", blocks)
	}

	check := func(field string, expected []string) {
		got, _ := comment.Get(field)
		if !slices.Equal(got, expected) {
			t.Errorf("%s = %v, expected %v", field, got, expected)
		}
	}
	check(flacvorbis.FIELD_TITLE, []string{"Song"})
	check(flacvorbis.FIELD_ALBUM, []string{"Album"})
	check(flacvorbis.FIELD_ARTIST, []string{"A", "B"})
	check(flacvorbis.FIELD_TRACKNUMBER, []string{"3"})
	check("TRACKTOTAL", []string{"10"})

	if !bytes.HasSuffix(f.Frames, []byte{0xff, 0xf8, 0x01, 0x02}) {
		t.Error("Expected audio frames to be preserved")
	}
}

package apply

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bogem/id3v2"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
)

// Tags are the fields retag writes into a file.
type Tags struct {
	Title       string
	Album       string
	Performers  []string
	TrackNumber int
	TrackTotal  int
}

// TagWriter writes Tags into the file at path.
type TagWriter interface {
	WriteTags(path string, tags Tags) error
}

// performerSeparator joins several performers into one text field.
const performerSeparator = "; "

// defaultWriters maps lower-case extensions to their tag writer. Other
// formats are renamed but not tagged.
func defaultWriters() map[string]TagWriter {
	return map[string]TagWriter{
		".mp3":  id3Writer{},
		".flac": flacWriter{},
	}
}

type id3Writer struct{}

func (id3Writer) WriteTags(path string, tags Tags) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open id3 tag: %w", err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetTitle(tags.Title)
	tag.SetAlbum(tags.Album)
	tag.SetArtist(strings.Join(tags.Performers, performerSeparator))

	trackFrame := tag.CommonID("Track number/Position in set")
	tag.DeleteFrames(trackFrame)
	tag.AddTextFrame(trackFrame, id3v2.EncodingUTF8, trackPosition(tags))

	if err := tag.Save(); err != nil {
		return fmt.Errorf("save id3 tag: %w", err)
	}
	return nil
}

func trackPosition(tags Tags) string {
	if tags.TrackTotal > 0 {
		return fmt.Sprintf("%d/%d", tags.TrackNumber, tags.TrackTotal)
	}
	return strconv.Itoa(tags.TrackNumber)
}

type flacWriter struct{}

// replacedVorbisFields are dropped from an existing comment block before the
// new values are added.
var replacedVorbisFields = []string{
	flacvorbis.FIELD_TITLE,
	flacvorbis.FIELD_ALBUM,
	flacvorbis.FIELD_ARTIST,
	flacvorbis.FIELD_TRACKNUMBER,
	"TRACKTOTAL",
}

func (flacWriter) WriteTags(path string, tags Tags) error {
	f, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("failed to parse FLAC file: %w", err)
	}

	comment := flacvorbis.New()
	index := -1
	for i, block := range f.Meta {
		if block.Type != flac.VorbisComment {
			continue
		}
		existing, err := flacvorbis.ParseFromMetaDataBlock(*block)
		if err != nil {
			return fmt.Errorf("parse vorbis comment: %w", err)
		}
		comment = existing
		index = i
		break
	}

	comment.Comments = withoutFields(comment.Comments, replacedVorbisFields)
	addField(comment, flacvorbis.FIELD_TITLE, tags.Title)
	addField(comment, flacvorbis.FIELD_ALBUM, tags.Album)
	for _, performer := range tags.Performers {
		addField(comment, flacvorbis.FIELD_ARTIST, performer)
	}
	addField(comment, flacvorbis.FIELD_TRACKNUMBER, strconv.Itoa(tags.TrackNumber))
	if tags.TrackTotal > 0 {
		addField(comment, "TRACKTOTAL", strconv.Itoa(tags.TrackTotal))
	}

	block := comment.Marshal()
	if index >= 0 {
		f.Meta[index] = &block
	} else {
		f.Meta = append(f.Meta, &block)
	}

	if err := f.Save(path); err != nil {
		return fmt.Errorf("failed to save FLAC file with metadata: %w", err)
	}
	return nil
}

// withoutFields drops "KEY=value" comments whose key is in fields, ignoring
// case.
func withoutFields(comments []string, fields []string) []string {
	kept := comments[:0:0]
	for _, c := range comments {
		key, _, _ := strings.Cut(c, "=")
		drop := false
		for _, field := range fields {
			if strings.EqualFold(key, field) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, c)
		}
	}
	return kept
}

// addField adds a field to vorbis comment only if value is not empty
func addField(comment *flacvorbis.MetaDataBlockVorbisComment, field, value string) {
	if value != "" {
		_ = comment.Add(field, value)
	}
}

package matcher

import (
	"context"
	"errors"
)

// ErrReleaseNotFound is returned by a Source when a release id does not
// resolve. The matcher skips such candidates.
var ErrReleaseNotFound = errors.New("release not found")

// BriefRelease is a search hit before its details are fetched.
type BriefRelease struct {
	ID       string
	MasterID string
	Title    string
}

// IsMaster reports whether the hit is a master aggregation rather than a
// concrete release.
func (b BriefRelease) IsMaster() bool {
	return b.ID == b.MasterID
}

// Track is one tracklist entry of a release.
type Track struct {
	Position string
	Title    string
}

// Release is the full detail of a release. A nil Tracklist means the source
// returned none.
type Release struct {
	ID        string
	Title     string
	Tracklist []Track
	Artists   []string
	// Have is the community popularity count.
	Have int
}

// Source is a remote release database.
type Source interface {
	Search(ctx context.Context, query string) ([]BriefRelease, error)
	GetRelease(ctx context.Context, id string) (Release, error)
}

package title

import (
	"context"
	"strings"

	"github.com/hbomb79/Marquee/internal/http/lastfm"
	"github.com/hbomb79/Marquee/pkg/logger"
)

// Untitled is used when neither the lookup nor the filename stem can
// provide a usable title.
const Untitled = "untitled"

var (
	log = logger.Get("Title")

	degenerateValues = map[string]struct{}{
		"":          {},
		"undefined": {},
		"null":      {},
		"N/A":       {},
		"Unknown":   {},
		"[unknown]": {},
	}
)

type (
	TrackSearcher interface {
		SearchTrack(ctx context.Context, query string) (*lastfm.Track, error)
	}

	// Resolver derives a human-presentable title for an uploaded file
	// by looking the filename stem up against an external track catalog.
	Resolver struct {
		searcher TrackSearcher
	}
)

func NewResolver(searcher TrackSearcher) *Resolver {
	return &Resolver{searcher}
}

// Resolve returns a title for the stem provided. The result is never
// empty and never contains "undefined": lookup failures (or lookups which
// return unusable values) fall back to the stem itself, and a degenerate
// stem falls back to Untitled. Errors are logged, never returned.
func (resolver *Resolver) Resolve(ctx context.Context, stem string) string {
	fallback := Fallback(stem)
	if resolver.searcher == nil {
		return fallback
	}

	track, err := resolver.searcher.SearchTrack(ctx, stem)
	if err != nil {
		log.Emit(logger.WARNING, "Title lookup for %q failed, falling back to filename: %v\n", stem, err)
		return fallback
	} else if track == nil {
		return fallback
	}

	if composed, ok := Compose(track.Name, track.Artist); ok {
		log.Emit(logger.DEBUG, "Resolved %q to title %q\n", stem, composed)
		return composed
	}

	log.Emit(logger.WARNING, "Title lookup for %q returned unusable values (name=%q, artist=%q), falling back to filename\n", stem, track.Name, track.Artist)
	return fallback
}

// Compose builds "title - artist" from the values provided, dropping the
// artist if it is degenerate. The boolean return is false if the title
// itself is degenerate.
func Compose(name string, artist string) (string, bool) {
	name, artist = strings.TrimSpace(name), strings.TrimSpace(artist)
	if IsDegenerate(name) {
		return "", false
	}

	var composed string
	if IsDegenerate(artist) {
		composed = name
	} else {
		composed = name + " - " + artist
	}

	if strings.Contains(composed, "undefined") {
		return "", false
	}

	return composed, true
}

// Fallback returns the trimmed stem, or Untitled if the stem is
// not usable as a title.
func Fallback(stem string) string {
	stem = strings.TrimSpace(stem)
	if IsDegenerate(stem) || strings.Contains(stem, "undefined") {
		return Untitled
	}

	return stem
}

func IsDegenerate(value string) bool {
	_, ok := degenerateValues[strings.TrimSpace(value)]
	return ok
}

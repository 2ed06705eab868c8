package lavalink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/friendsincode/tonelist/internal/models"
)

// DefaultSearchPrefix turns plain text into a YouTube search.
const DefaultSearchPrefix = "ytsearch:"

var searchPrefixes = []string{"ytsearch:", "ytmsearch:", "scsearch:", "spsearch:", "amsearch:", "dzsearch:"}

// TrackLoader is the loadtracks call.
type TrackLoader interface {
	LoadTracks(ctx context.Context, identifier string) (*LoadResult, error)
}

// Resolver maps queries to tracks through a Lavalink node.
type Resolver struct {
	loader TrackLoader
	prefix string
}

// NewResolver creates a resolver. searchPrefix may be given with or without
// its trailing colon.
func NewResolver(loader TrackLoader, searchPrefix string) *Resolver {
	if searchPrefix == "" {
		searchPrefix = DefaultSearchPrefix
	}
	if !strings.HasSuffix(searchPrefix, ":") {
		searchPrefix += ":"
	}
	return &Resolver{loader: loader, prefix: searchPrefix}
}

// Resolve returns every track of a playlist, the first hit of a search, or
// the single loaded track. No matches is an empty result, not an error.
func (r *Resolver) Resolve(ctx context.Context, query string) ([]models.Track, error) {
	res, err := r.loader.LoadTracks(ctx, r.identifier(query))
	if err != nil {
		return nil, fmt.Errorf("load tracks: %w", err)
	}

	switch res.LoadType {
	case LoadTrack:
		var t Track
		if err := json.Unmarshal(res.Data, &t); err != nil {
			return nil, fmt.Errorf("decode track: %w", err)
		}
		return []models.Track{t.Model()}, nil

	case LoadPlaylist:
		var p playlist
		if err := json.Unmarshal(res.Data, &p); err != nil {
			return nil, fmt.Errorf("decode playlist: %w", err)
		}
		return convert(p.Tracks), nil

	case LoadSearch:
		var hits []Track
		if err := json.Unmarshal(res.Data, &hits); err != nil {
			return nil, fmt.Errorf("decode search: %w", err)
		}
		if len(hits) == 0 {
			return nil, nil
		}
		return convert(hits[:1]), nil

	case LoadEmpty:
		return nil, nil

	case LoadError:
		var ex Exception
		_ = json.Unmarshal(res.Data, &ex)
		if ex.Message == "" {
			ex.Message = "unknown load failure"
		}
		return nil, fmt.Errorf("load failed: %s", ex.Message)

	default:
		return nil, fmt.Errorf("unexpected load type %q", res.LoadType)
	}
}

func (r *Resolver) identifier(query string) string {
	query = strings.TrimSpace(query)
	if isURL(query) {
		return query
	}
	for _, p := range searchPrefixes {
		if strings.HasPrefix(query, p) {
			return query
		}
	}
	return r.prefix + query
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func convert(tracks []Track) []models.Track {
	out := make([]models.Track, len(tracks))
	for i, t := range tracks {
		out[i] = t.Model()
	}
	return out
}

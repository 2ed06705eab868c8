package lavalink

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type loaderFunc func(ctx context.Context, identifier string) (*LoadResult, error)

func (f loaderFunc) LoadTracks(ctx context.Context, identifier string) (*LoadResult, error) {
	return f(ctx, identifier)
}

func trackJSON(id string) string {
	return `{"encoded":"enc-` + id + `","info":{"identifier":"` + id + `","title":"Title ` + id + `","author":"A","length":1000,"isStream":false,"uri":"https://x/` + id + `"}}`
}

func TestResolverLoadTypes(t *testing.T) {
	tests := []struct {
		name    string
		result  LoadResult
		want    []string
		wantErr string
	}{
		{"track", LoadResult{LoadTrack, json.RawMessage(trackJSON("a"))}, []string{"a"}, ""},
		{"playlist", LoadResult{LoadPlaylist, json.RawMessage(`{"info":{"name":"p"},"tracks":[` + trackJSON("a") + `,` + trackJSON("b") + `]}`)}, []string{"a", "b"}, ""},
		{"search takes first", LoadResult{LoadSearch, json.RawMessage(`[` + trackJSON("a") + `,` + trackJSON("b") + `]`)}, []string{"a"}, ""},
		{"search empty", LoadResult{LoadSearch, json.RawMessage(`[]`)}, nil, ""},
		{"empty", LoadResult{LoadEmpty, json.RawMessage(`{}`)}, nil, ""},
		{"error", LoadResult{LoadError, json.RawMessage(`{"message":"blocked","severity":"common"}`)}, nil, "blocked"},
		{"unknown", LoadResult{"weird", nil}, nil, "unexpected load type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(loaderFunc(func(context.Context, string) (*LoadResult, error) {
				res := tt.result
				return &res, nil
			}), "")
			tracks, err := r.Resolve(context.Background(), "q")
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if len(tracks) != len(tt.want) {
				t.Fatalf("got %d tracks, want %d", len(tracks), len(tt.want))
			}
			for i, id := range tt.want {
				if tracks[i].Identifier != id || tracks[i].Payload != "enc-"+id {
					t.Errorf("track %d = %+v", i, tracks[i])
				}
			}
		})
	}
}

func TestResolverTrackFields(t *testing.T) {
	r := NewResolver(loaderFunc(func(context.Context, string) (*LoadResult, error) {
		return &LoadResult{LoadTrack, json.RawMessage(trackJSON("a"))}, nil
	}), "")
	tracks, err := r.Resolve(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	got := tracks[0]
	if got.Title != "Title a" || got.Author != "A" || got.DurationMS != 1000 || got.URI != "https://x/a" {
		t.Errorf("track = %+v", got)
	}
}

func TestResolverIdentifier(t *testing.T) {
	tests := []struct {
		query, want string
	}{
		{"never gonna give you up", "ytsearch:never gonna give you up"},
		{"  padded  ", "ytsearch:padded"},
		{"https://youtu.be/dQw4w9WgXcQ", "https://youtu.be/dQw4w9WgXcQ"},
		{"scsearch:lofi", "scsearch:lofi"},
		{"ftp://host/file", "ytsearch:ftp://host/file"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var got string
			r := NewResolver(loaderFunc(func(_ context.Context, id string) (*LoadResult, error) {
				got = id
				return &LoadResult{LoadType: LoadEmpty}, nil
			}), DefaultSearchPrefix)
			if _, err := r.Resolve(context.Background(), tt.query); err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("identifier = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolverPrefixColon(t *testing.T) {
	var got string
	r := NewResolver(loaderFunc(func(_ context.Context, id string) (*LoadResult, error) {
		got = id
		return &LoadResult{LoadType: LoadEmpty}, nil
	}), "scsearch")
	if _, err := r.Resolve(context.Background(), "lofi"); err != nil {
		t.Fatal(err)
	}
	if got != "scsearch:lofi" {
		t.Errorf("identifier = %q, want scsearch:lofi", got)
	}
}

func TestResolverLoaderError(t *testing.T) {
	boom := errors.New("boom")
	r := NewResolver(loaderFunc(func(context.Context, string) (*LoadResult, error) {
		return nil, boom
	}), "")
	if _, err := r.Resolve(context.Background(), "q"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}

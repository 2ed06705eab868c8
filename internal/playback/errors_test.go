package playback

import (
	"errors"
	"fmt"
	"testing"

	"github.com/friendsincode/tonelist/internal/store"
	"github.com/friendsincode/tonelist/internal/voice"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"store miss", fmt.Errorf("load queue: %w", store.ErrNotFound), KindQueueNotFound},
		{"guild", fmt.Errorf("dial voice: %w", voice.ErrGuildNotFound), KindGuildNotFound},
		{"channel", fmt.Errorf("dial voice: %w", voice.ErrChannelNotFound), KindChannelNotFound},
		{"not playing", voice.ErrNotPlaying, KindNotPlaying},
		{"foreign", errors.New("disk on fire"), KindInternal},
		{"already classified", newError("inner", KindNoMatches, nil), KindNoMatches},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", tt.err)
			if got := KindOf(err); got != tt.want {
				t.Errorf("KindOf() = %s, want %s", got, tt.want)
			}
			if !errors.Is(err, tt.err) {
				t.Error("classified error does not wrap the cause")
			}
		})
	}
	if classify("op", nil) != nil {
		t.Error("classify(nil) should be nil")
	}
}

func TestKindOfForeignError(t *testing.T) {
	if got := KindOf(errors.New("x")); got != KindInternal {
		t.Errorf("KindOf() = %s, want internal", got)
	}
	wrapped := fmt.Errorf("surface: %w", newError("skip", KindNotConnected, nil))
	if got := KindOf(wrapped); got != KindNotConnected {
		t.Errorf("KindOf(wrapped) = %s, want not_connected", got)
	}
}

func TestKindNames(t *testing.T) {
	seen := map[string]Kind{}
	for k := Kind(0); k < KindCount; k++ {
		name := k.String()
		if name == "" {
			t.Errorf("kind %d has no name", k)
		}
		if prev, dup := seen[name]; dup {
			t.Errorf("kinds %d and %d share name %q", prev, k, name)
		}
		seen[name] = k
	}
	if got := KindCount.String(); got != "kind(12)" {
		t.Errorf("KindCount.String() = %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	err := newError("join", KindAlreadyConnected, nil)
	if got := err.Error(); got != "join: already_connected" {
		t.Errorf("Error() = %q", got)
	}
	err = newError("enqueue", KindResolutionFailed, errors.New("timeout"))
	if got := err.Error(); got != "enqueue: resolution_failed: timeout" {
		t.Errorf("Error() = %q", got)
	}
}

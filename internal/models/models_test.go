package models

import "testing"

func TestQueueCloneIsIndependent(t *testing.T) {
	q := &Queue{BoundChannel: "c1", Tracks: []Track{{Identifier: "a"}, {Identifier: "b"}}}
	c := q.Clone()
	c.Tracks[0].Identifier = "z"
	c.Tracks = append(c.Tracks, Track{Identifier: "c"})

	if q.Tracks[0].Identifier != "a" {
		t.Errorf("original mutated through clone: %q", q.Tracks[0].Identifier)
	}
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}
}

func TestQueueHead(t *testing.T) {
	var empty *Queue
	if _, ok := empty.Head(); ok {
		t.Error("Head() on nil queue reported a track")
	}

	q := &Queue{Tracks: []Track{{Identifier: "a", DurationMS: 1500}}}
	head, ok := q.Head()
	if !ok || head.Identifier != "a" {
		t.Fatalf("Head() = %+v, %v", head, ok)
	}
	if head.Duration().Milliseconds() != 1500 {
		t.Errorf("Duration() = %v, want 1.5s", head.Duration())
	}
}

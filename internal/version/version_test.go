package version

import "testing"

func TestStringPrefersLdflags(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })

	Version = "1.2.3"
	if got := String(); got != "1.2.3" {
		t.Errorf("String() = %q, want 1.2.3", got)
	}
}

func TestStringNeverEmpty(t *testing.T) {
	if String() == "" {
		t.Error("String() is empty")
	}
}

package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })

	Version = "1.2.3"
	got := String()
	if !strings.Contains(got, "1.2.3") || !strings.Contains(got, Commit) {
		t.Errorf("String() = %q", got)
	}
}

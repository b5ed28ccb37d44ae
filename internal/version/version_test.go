package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	prev := Version
	defer func() { Version = prev }()

	Version = "1.2.3"
	s := String()
	if !strings.Contains(s, "1.2.3") || !strings.HasPrefix(s, "scenario.board ") {
		t.Errorf("String() = %q", s)
	}
}

package literature_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/medsift/pkg/provider/literature"
)

func TestSnippet(t *testing.T) {
	t.Parallel()

	short := "Metformin lowers glucose."
	if got := literature.Snippet(short); got != short {
		t.Errorf("Snippet(short) = %q, want unchanged", got)
	}

	long := strings.Repeat("é", 250)
	got := literature.Snippet(long)
	if want := strings.Repeat("é", 200) + "..."; got != want {
		t.Errorf("Snippet(long) has %d bytes, want %d", len(got), len(want))
	}
}

func TestCapAuthors(t *testing.T) {
	t.Parallel()

	got := literature.CapAuthors([]string{"A", "", "B", "C", "D", "E", "F"})
	if len(got) != 5 || got[0] != "A" || got[4] != "E" {
		t.Errorf("CapAuthors = %v, want [A B C D E]", got)
	}
}

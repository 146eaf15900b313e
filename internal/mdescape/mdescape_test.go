package mdescape

import (
	"strings"
	"testing"
	"testing/quick"
)

func TestEscape_Empty(t *testing.T) {
	if got := Escape(""); got != "" {
		t.Errorf("Escape(\"\") = %q, want empty", got)
	}
}

func TestEscape_S3(t *testing.T) {
	got := Escape("a*b_c")
	want := `a\*b\_c`
	if got != want {
		t.Errorf("Escape(%q) = %q, want %q", "a*b_c", got, want)
	}
}

func TestEscape_AllMetacharacters(t *testing.T) {
	for _, c := range metacharacters {
		got := Escape(string(c))
		want := "\\" + string(c)
		if got != want {
			t.Errorf("Escape(%q) = %q, want %q", string(c), got, want)
		}
	}
}

func TestEscape_PreservesOrderAndContent(t *testing.T) {
	f := func(s string) bool {
		escaped := Escape(s)
		// Every rune of s must still appear in order in escaped.
		i := 0
		for _, r := range s {
			idx := strings.IndexRune(escaped[i:], r)
			if idx < 0 {
				return false
			}
			i += idx + len(string(r))
		}
		return true
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestEscape_BackslashPrecedesMetacharacters(t *testing.T) {
	// Walk s and the escaped output in lockstep: every original
	// metacharacter must be immediately preceded by the backslash Escape
	// inserted for it.
	f := func(s string) bool {
		escaped := []rune(Escape(s))
		pos := 0
		for _, r := range s {
			if pos >= len(escaped) {
				return false
			}
			if strings.ContainsRune(metacharacters, r) {
				if escaped[pos] != '\\' || pos+1 >= len(escaped) || escaped[pos+1] != r {
					return false
				}
				pos += 2
			} else {
				if escaped[pos] != r {
					return false
				}
				pos++
			}
		}
		return pos == len(escaped)
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

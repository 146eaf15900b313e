package msgsplit

import (
	"strings"
	"testing"
	"testing/quick"
)

func TestSplit_InvalidChunkSize(t *testing.T) {
	if _, err := Split("abc", 0); err != ErrInvalidChunkSize {
		t.Errorf("Split with chunkSize=0: got err %v, want ErrInvalidChunkSize", err)
	}
	if _, err := Split("abc", -1); err != ErrInvalidChunkSize {
		t.Errorf("Split with chunkSize=-1: got err %v, want ErrInvalidChunkSize", err)
	}
}

func TestSplit_ShortText(t *testing.T) {
	got, err := Split("hi", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "hi" {
		t.Errorf("Split(%q, 10) = %v, want [%q]", "hi", got, "hi")
	}
}

// S1: splitter round-trip.
func TestSplit_S1(t *testing.T) {
	got, err := Split("abcdefgh", 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"abc", "def", "gh"}
	if !equal(got, want) {
		t.Errorf("Split(%q, 3) = %v, want %v", "abcdefgh", got, want)
	}
}

// S2: splitter escape guard.
func TestSplit_S2(t *testing.T) {
	got, err := Split(`abc\def`, 4)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"abc", `\def`}
	if !equal(got, want) {
		t.Errorf("Split(%q, 4) = %v, want %v", `abc\def`, got, want)
	}
}

// Boundary: chunkSize=1 around backslashes.
func TestSplit_ChunkSizeOneBackslashBoundary(t *testing.T) {
	got, err := Split(`\a\b`, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{`\a`, `\b`}
	if !equal(got, want) {
		t.Errorf(`Split("\a\b", 1) = %v, want %v`, got, want)
	}
}

func TestSplit_RoundTripProperty(t *testing.T) {
	f := func(s string, size uint8) bool {
		chunkSize := int(size)%200 + 1
		chunks, err := Split(s, chunkSize)
		if err != nil {
			return false
		}
		joined := strings.Join(chunks, "")
		if joined != s {
			return false
		}
		for i, c := range chunks {
			if c == "" {
				return false
			}
			// No intermediate chunk may end with a lone, non-terminal backslash.
			if i != len(chunks)-1 {
				r := []rune(c)
				if r[len(r)-1] == '\\' {
					return false
				}
			}
		}
		return true
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 2000}); err != nil {
		t.Error(err)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

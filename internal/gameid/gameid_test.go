package gameid

import (
	"strings"
	"testing"
)

// fixedSource returns a repeating sequence for deterministic tests.
type fixedSource struct {
	values []int
	pos    int
}

func (f *fixedSource) Intn(n int) int {
	v := f.values[f.pos%len(f.values)] % n
	f.pos++
	return v
}

func TestGenerate(t *testing.T) {
	id := Generate()

	if len(id) != 26 {
		t.Errorf("expected 26 characters, got %d", len(id))
	}

	if err := Validate(id); err != nil {
		t.Errorf("generated ID failed validation: %v", err)
	}

	if id[0] > '7' {
		t.Errorf("first character %c exceeds maximum '7'", id[0])
	}
}

func TestGenerateUnique(t *testing.T) {
	ids := make(map[string]bool)

	for i := 0; i < 100; i++ {
		id := Generate()
		if ids[id] {
			t.Errorf("duplicate ID generated: %s", id)
		}
		ids[id] = true
	}
}

func TestGenerateWithRandSource(t *testing.T) {
	a := NewGenerator(&fixedSource{values: []int{1, 2, 3}}).Generate()
	b := NewGenerator(&fixedSource{values: []int{1, 2, 3}}).Generate()

	// Same rand source, same millisecond bucket: random tail must match.
	if a[10:] != b[10:] {
		t.Errorf("deterministic tails differ: %s vs %s", a, b)
	}
}

func TestJoinCode(t *testing.T) {
	code := NewGenerator(nil).JoinCode()

	if len(code) != JoinCodeLength {
		t.Errorf("expected %d characters, got %d", JoinCodeLength, len(code))
	}
	if err := ValidateJoinCode(code); err != nil {
		t.Errorf("generated code failed validation: %v", err)
	}
	for _, forbidden := range "01IO" {
		if strings.ContainsRune(code, forbidden) {
			t.Errorf("code %s contains ambiguous glyph %c", code, forbidden)
		}
	}
}

func TestNewJoinCodeRetries(t *testing.T) {
	g := NewGenerator(&fixedSource{values: []int{5, 9, 14, 2, 27, 31}})

	code, err := g.NewJoinCode(func(string) bool { return false })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateJoinCode(code); err != nil {
		t.Errorf("code failed validation: %v", err)
	}

	attempts := 0
	_, err = g.NewJoinCode(func(string) bool {
		attempts++
		return true
	})
	if err == nil {
		t.Fatal("expected exhaustion error when every code is taken")
	}
	if attempts != JoinCodeRetries {
		t.Errorf("expected %d attempts, got %d", JoinCodeRetries, attempts)
	}
}

func TestValidateJoinCode(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
	}{
		{"valid", "ABC234", false},
		{"too short", "ABC23", true},
		{"too long", "ABC2345", true},
		{"ambiguous zero", "ABC230", true},
		{"ambiguous one", "ABC231", true},
		{"lowercase", "abc234", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJoinCode(tt.code)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateJoinCode(%q) error = %v, wantErr %v", tt.code, err, tt.wantErr)
			}
		})
	}
}

package query

import (
	"errors"
	"testing"
)

func TestNewNormalizes(t *testing.T) {
	q := New("  Alp  ", ModePrefix, 0)
	if q.Folded != "alp" {
		t.Errorf("Folded = %q, want alp", q.Folded)
	}
	if q.MaxResults != DefaultMaxResults {
		t.Errorf("MaxResults = %d, want %d", q.MaxResults, DefaultMaxResults)
	}
	if q.Text != "  Alp  " {
		t.Errorf("Text modified: %q", q.Text)
	}
	if !New(" \t", ModePrefix, 10).Empty() {
		t.Error("whitespace query not empty")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "prefix", want: ModePrefix},
		{in: "", want: ModePrefix},
		{in: "Contains", want: ModeContains},
		{in: "regex", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownMode) {
				t.Errorf("ParseMode(%q) error = %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseMode(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestModeUsedText(t *testing.T) {
	b, err := UsedLive.MarshalText()
	if err != nil || string(b) != "live" {
		t.Errorf("MarshalText() = %s, %v", b, err)
	}
	if ModeUsed(0).String() != "none" {
		t.Error("zero ModeUsed should print none")
	}
}

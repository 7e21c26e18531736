package metrics

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestNewClassifier_Validation(t *testing.T) {
	tests := []struct {
		name    string
		bands   []Band
		above   Level
		wantErr bool
	}{
		{"rising", []Band{{1, LevelLow}, {2, LevelMedium}}, LevelHigh, false},
		{"falling", []Band{{1, LevelElite}, {2, LevelHigh}}, LevelLow, false},
		{"flat steps allowed", []Band{{1, LevelLow}, {2, LevelLow}}, LevelHigh, false},
		{"no bands", nil, LevelHigh, false},
		{"breakpoints not ascending", []Band{{2, LevelLow}, {1, LevelMedium}}, LevelHigh, true},
		{"duplicate breakpoint", []Band{{1, LevelLow}, {1, LevelMedium}}, LevelHigh, true},
		{"mixed polarity", []Band{{1, LevelLow}, {2, LevelHigh}}, LevelMedium, true},
		{"NaN breakpoint", []Band{{math.NaN(), LevelLow}}, LevelHigh, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClassifier(tt.bands, tt.above)
			if tt.wantErr {
				if !errors.Is(err, ErrNonMonotonicBands) {
					t.Errorf("Expected ErrNonMonotonicBands, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestClassifier_Classify(t *testing.T) {
	c, err := NewClassifier([]Band{{10, LevelElite}, {20, LevelHigh}}, LevelLow)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	tests := []struct {
		value float64
		want  Level
	}{
		{0, LevelElite},
		{10, LevelElite},
		{10.5, LevelHigh},
		{20, LevelHigh},
		{21, LevelLow},
		{math.Inf(1), LevelLow},
		{math.NaN(), LevelInvalid},
	}

	for _, tt := range tests {
		if got := c.Classify(tt.value); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestLevel_TextRoundTrip(t *testing.T) {
	data, err := json.Marshal(map[string]Level{"df": LevelElite, "lt": LevelInvalid})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"df":"ELITE","lt":"INVALID"}` {
		t.Errorf("Unexpected encoding: %s", data)
	}

	var level Level
	if err := level.UnmarshalText([]byte("MEDIUM")); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if level != LevelMedium {
		t.Errorf("Expected MEDIUM, got %v", level)
	}

	if err := level.UnmarshalText([]byte("AMAZING")); err == nil {
		t.Errorf("Expected error for unknown level")
	}
}

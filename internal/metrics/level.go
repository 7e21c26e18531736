package metrics

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidWindowDays is returned when a level is requested for a window
	// that does not span a positive number of days.
	ErrInvalidWindowDays = errors.New("window days must be positive")

	// ErrNonMonotonicBands is returned when a classifier's breakpoints or
	// levels are out of order.
	ErrNonMonotonicBands = errors.New("classifier bands must be ascending and monotonic")
)

// Level is a DORA performance tier.
type Level int

const (
	// LevelInvalid means there was no data to classify.
	LevelInvalid Level = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelElite
)

var levelNames = map[Level]string{
	LevelInvalid: "INVALID",
	LevelLow:     "LOW",
	LevelMedium:  "MEDIUM",
	LevelHigh:    "HIGH",
	LevelElite:   "ELITE",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	if _, ok := levelNames[l]; !ok {
		return nil, fmt.Errorf("unknown level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name.
func (l *Level) UnmarshalText(text []byte) error {
	for level, name := range levelNames {
		if name == string(text) {
			*l = level
			return nil
		}
	}
	return fmt.Errorf("unknown level %q", string(text))
}

// Band maps every value up to and including UpTo to Level.
type Band struct {
	UpTo  float64
	Level Level
}

// Classifier is a monotonic step function from a value to a Level. Values
// above the last band's breakpoint map to Above.
type Classifier struct {
	bands []Band
	above Level
}

// NewClassifier validates that breakpoints are strictly ascending and that
// levels move in one direction only (either polarity is allowed, so metrics
// where lower is better can share the same shape).
func NewClassifier(bands []Band, above Level) (Classifier, error) {
	levels := make([]Level, 0, len(bands)+1)
	for i, band := range bands {
		if math.IsNaN(band.UpTo) {
			return Classifier{}, fmt.Errorf("band %d: %w", i, ErrNonMonotonicBands)
		}
		if i > 0 && band.UpTo <= bands[i-1].UpTo {
			return Classifier{}, fmt.Errorf("band %d breakpoint %v: %w", i, band.UpTo, ErrNonMonotonicBands)
		}
		levels = append(levels, band.Level)
	}
	levels = append(levels, above)

	var rising, falling bool
	for i := 1; i < len(levels); i++ {
		switch {
		case levels[i] > levels[i-1]:
			rising = true
		case levels[i] < levels[i-1]:
			falling = true
		}
	}
	if rising && falling {
		return Classifier{}, ErrNonMonotonicBands
	}

	return Classifier{bands: append([]Band(nil), bands...), above: above}, nil
}

// mustClassifier is for the fixed breakpoint tables the calculators own.
func mustClassifier(bands []Band, above Level) Classifier {
	c, err := NewClassifier(bands, above)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the level for v. NaN means "no data" and is LevelInvalid.
func (c Classifier) Classify(v float64) Level {
	if math.IsNaN(v) {
		return LevelInvalid
	}
	for _, band := range c.bands {
		if v <= band.UpTo {
			return band.Level
		}
	}
	return c.above
}

func checkWindowDays(windowDays int) error {
	if windowDays <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidWindowDays, windowDays)
	}
	return nil
}

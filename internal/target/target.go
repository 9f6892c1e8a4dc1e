package target

import (
	"fmt"
	"regexp"
	"strconv"

	"go.uber.org/multierr"
)

// Format is the accepted shape of a target specification.
const Format = "name:quality:maxWidth:maxHeight"

var targetPattern = regexp.MustCompile(`^(\w+)(?::([0-9.]*)(?::([0-9]*)(?::([0-9]*))?)?)?$`)

// Target is a named output profile.
type Target struct {
	Name      string  `json:"name"`
	Quality   float64 `json:"quality"`
	MaxWidth  int     `json:"maxWidth,omitempty"`
	MaxHeight int     `json:"maxHeight,omitempty"`
}

// ParseError describes a target string that could not be turned into a Target.
type ParseError struct {
	Input string
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid target %q: %v", e.Input, e.Err)
	}
	return fmt.Sprintf("invalid target %q: field %s: %v", e.Input, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Resizes reports whether the target bounds at least one dimension.
func (t Target) Resizes() bool {
	return t.MaxWidth > 0 || t.MaxHeight > 0
}

// Geometry returns the shrink-only resize geometry for the target, or an
// empty string when no resize is needed.
func (t Target) Geometry() string {
	switch {
	case t.MaxWidth > 0 && t.MaxHeight > 0:
		return fmt.Sprintf("%dx%d>", t.MaxWidth, t.MaxHeight)
	case t.MaxWidth > 0:
		return fmt.Sprintf("%d>", t.MaxWidth)
	case t.MaxHeight > 0:
		return fmt.Sprintf("x%d>", t.MaxHeight)
	default:
		return ""
	}
}

// String formats the target back into its specification form.
func (t Target) String() string {
	s := t.Name + ":" + strconv.FormatFloat(t.Quality, 'f', -1, 64) + ":"
	if t.MaxWidth > 0 {
		s += strconv.Itoa(t.MaxWidth)
	}
	s += ":"
	if t.MaxHeight > 0 {
		s += strconv.Itoa(t.MaxHeight)
	}
	return s
}

// Parse parses a single target specification. An empty quality segment
// takes defaultQuality.
func Parse(raw string, defaultQuality float64) (Target, error) {
	m := targetPattern.FindStringSubmatch(raw)
	if m == nil {
		return Target{}, &ParseError{
			Input: raw,
			Err:   fmt.Errorf("expected format %s (e.g. thumb::200:200)", Format),
		}
	}

	t := Target{Name: m[1], Quality: defaultQuality}

	if m[2] != "" {
		q, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return Target{}, &ParseError{Input: raw, Field: "quality", Err: fmt.Errorf("not a number: %q", m[2])}
		}
		if q <= 0 {
			return Target{}, &ParseError{Input: raw, Field: "quality", Err: fmt.Errorf("must be greater than 0")}
		}
		t.Quality = q
	}

	var err error
	if t.MaxWidth, err = parseDimension(m[3]); err != nil {
		return Target{}, &ParseError{Input: raw, Field: "maxWidth", Err: err}
	}
	if t.MaxHeight, err = parseDimension(m[4]); err != nil {
		return Target{}, &ParseError{Input: raw, Field: "maxHeight", Err: err}
	}

	return t, nil
}

// ParseAll parses every specification and returns all failures combined,
// including duplicate target names.
func ParseAll(raws []string, defaultQuality float64) ([]Target, error) {
	var errs error
	targets := make([]Target, 0, len(raws))
	seen := make(map[string]string, len(raws))

	for _, raw := range raws {
		t, err := Parse(raw, defaultQuality)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if prev, ok := seen[t.Name]; ok {
			errs = multierr.Append(errs, &ParseError{
				Input: raw,
				Field: "name",
				Err:   fmt.Errorf("duplicate target name %q (already used by %q)", t.Name, prev),
			})
			continue
		}
		seen[t.Name] = raw
		targets = append(targets, t)
	}

	if len(raws) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("at least one target is required (%s)", Format))
	}
	if errs != nil {
		return nil, errs
	}
	return targets, nil
}

// parseDimension converts an optional dimension segment; empty or 0 means
// unbounded.
func parseDimension(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return n, nil
}

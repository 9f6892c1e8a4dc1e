package extractor

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

var (
	tagLinePattern     = regexp.MustCompile(`^\s*([^:]+?)\s*:\s?(.*)$`)
	focalLengthPattern = regexp.MustCompile(`^\s*([0-9]+(?:\.[0-9]+)?)\s*mm`)
	keyReplacer        = strings.NewReplacer(" ", "", "-", "", "_", "")
)

// exifFields is the schema the normalized tag map is decoded into. Keys are
// tag names with spaces, hyphens and underscores removed.
type exifFields struct {
	Make               *string  `mapstructure:"Make"`
	Model              *string  `mapstructure:"Model"`
	ProfileDescription *string  `mapstructure:"ProfileDescription"`
	LensMake           *string  `mapstructure:"LensMake"`
	LensModel          *string  `mapstructure:"LensModel"`
	ExposureTime       *string  `mapstructure:"ExposureTime"`
	FNumber            *float64 `mapstructure:"FNumber"`
	ISO                *int     `mapstructure:"ISO"`
	FocalLength        *string  `mapstructure:"FocalLength"`
	ImageWidth         *int     `mapstructure:"ImageWidth"`
	ImageHeight        *int     `mapstructure:"ImageHeight"`
	DateTimeOriginal   *string  `mapstructure:"DateTimeOriginal"`
	OffsetTimeOriginal *string  `mapstructure:"OffsetTimeOriginal"`
	Description        *string  `mapstructure:"Description"`
	ImageDescription   *string  `mapstructure:"ImageDescription"`
	Title              *string  `mapstructure:"Title"`
	Location           *string  `mapstructure:"Location"`
	Sublocation        *string  `mapstructure:"Sublocation"`
}

// NormalizeKey collapses tag-name variants such as "Sub-location" and
// "Sublocation" into one key.
func NormalizeKey(key string) string {
	return keyReplacer.Replace(strings.TrimSpace(key))
}

// ParseTagLines reads "Key : Value" lines into a map keyed by normalized tag
// name. Lines without a colon are ignored and the first occurrence of a key
// wins.
func ParseTagLines(raw string) map[string]string {
	tags := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		m := tagLinePattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		key := NormalizeKey(m[1])
		if key == "" {
			continue
		}
		if _, ok := tags[key]; ok {
			continue
		}
		tags[key] = strings.TrimSpace(m[2])
	}
	return tags
}

// ParseExiftoolMetadata turns exiftool text output into Metadata.
func ParseExiftoolMetadata(raw string) (*Metadata, error) {
	tags := ParseTagLines(raw)
	if len(tags) == 0 {
		return nil, ErrUnparseableMetadata
	}
	return FromTags(tags)
}

// FromTags validates a normalized tag map against the metadata schema.
func FromTags(tags map[string]string) (*Metadata, error) {
	var fields exifFields
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &fields,
	})
	if err != nil {
		return nil, fmt.Errorf("build metadata decoder: %w", err)
	}
	if err := decoder.Decode(tags); err != nil {
		return nil, fmt.Errorf("validate metadata: %w", err)
	}

	if fields.ImageWidth == nil {
		return nil, fmt.Errorf("validate metadata: missing required field ImageWidth")
	}
	if fields.ImageHeight == nil {
		return nil, fmt.Errorf("validate metadata: missing required field ImageHeight")
	}

	md := &Metadata{
		Make:         fields.Make,
		Model:        fields.Model,
		Profile:      fields.ProfileDescription,
		LensMake:     fields.LensMake,
		LensModel:    fields.LensModel,
		ExposureTime: fields.ExposureTime,
		FNumber:      fields.FNumber,
		ISO:          fields.ISO,
		Width:        *fields.ImageWidth,
		Height:       *fields.ImageHeight,
		Title:        fields.Title,
		Description:  fields.Description,
		Location:     resolveLocation(fields.Location, fields.Sublocation),
	}

	if md.Description == nil {
		md.Description = fields.ImageDescription
	}

	if fields.FocalLength != nil {
		md.FocalLength = parseFocalLength(*fields.FocalLength)
	}

	if fields.DateTimeOriginal != nil {
		offset := ""
		if fields.OffsetTimeOriginal != nil {
			offset = *fields.OffsetTimeOriginal
		}
		captured, err := ToDate(*fields.DateTimeOriginal, offset)
		if err != nil {
			return nil, err
		}
		md.Date = &captured.Date
		md.LocalDate = &captured.LocalDate
	}

	return md, nil
}

// resolveLocation prefers the longer of the two location tags. Some editors
// truncate Sub-location, so length is the best available signal for the
// complete value.
func resolveLocation(location, sublocation *string) *string {
	switch {
	case location == nil:
		return sublocation
	case sublocation == nil:
		return location
	case len(*sublocation) > len(*location):
		return sublocation
	default:
		return location
	}
}

// parseFocalLength keeps the leading millimetre figure of values like
// "35.8 mm (35 mm equivalent: 54.0 mm)".
func parseFocalLength(s string) *float64 {
	m := focalLengthPattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}

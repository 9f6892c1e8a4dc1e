package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnparseableMetadata is returned when no key/value pairs could be read.
	ErrUnparseableMetadata = errors.New("could not parse metadata")
	// ErrDateTimeOriginal is returned when the capture date has the wrong shape.
	ErrDateTimeOriginal = errors.New("could not parse DateTimeOriginal field")
	// ErrInvalidDate is returned when date and offset do not form a valid instant.
	ErrInvalidDate = errors.New("invalid date")
)

// MetadataExtractor reads normalized metadata from image files.
type MetadataExtractor interface {
	ReadMetadata(ctx context.Context, path string) (*Metadata, error)
}

// DimensionProber reports the pixel size of an image file.
type DimensionProber interface {
	Dimensions(path string) (width, height int, err error)
}

// LocalDateTime is the wall-clock capture time as
// [year, month, day, hour, minute, second].
type LocalDateTime [6]int

// Metadata is the normalized record of a source image. Everything except
// Width and Height is optional.
type Metadata struct {
	Make         *string        `json:"make,omitempty"`
	Model        *string        `json:"model,omitempty"`
	Profile      *string        `json:"profile,omitempty"`
	LensMake     *string        `json:"lensMake,omitempty"`
	LensModel    *string        `json:"lensModel,omitempty"`
	ExposureTime *string        `json:"exposureTime,omitempty"`
	FNumber      *float64       `json:"fNumber,omitempty"`
	ISO          *int           `json:"iso,omitempty"`
	FocalLength  *float64       `json:"focalLength,omitempty"`
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	Date         *time.Time     `json:"date,omitempty"`
	LocalDate    *LocalDateTime `json:"localDate,omitempty"`
	Description  *string        `json:"description,omitempty"`
	Title        *string        `json:"title,omitempty"`
	Location     *string        `json:"location,omitempty"`
}

// ExtractionError wraps a metadata failure for one file.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("read metadata %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

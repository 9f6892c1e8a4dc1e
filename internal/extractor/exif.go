package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"photo-resizer-go/internal/tools"

	"github.com/sirupsen/logrus"
)

// ExiftoolExtractor reads metadata by running exiftool in text mode.
type ExiftoolExtractor struct {
	logger   *logrus.Logger
	runner   tools.Runner
	exiftool string
}

// NewExiftoolExtractor returns an extractor that invokes the given exiftool
// binary through runner.
func NewExiftoolExtractor(logger *logrus.Logger, runner tools.Runner, exiftool string) *ExiftoolExtractor {
	if exiftool == "" {
		exiftool = tools.DefaultNames().Exiftool
	}
	return &ExiftoolExtractor{
		logger:   logger,
		runner:   runner,
		exiftool: exiftool,
	}
}

// ReadMetadata returns the normalized metadata of a single file.
func (e *ExiftoolExtractor) ReadMetadata(ctx context.Context, path string) (*Metadata, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &ExtractionError{Path: path, Err: fmt.Errorf("failed to stat file: %w", err)}
	}

	out, err := e.runner.Run(ctx, tools.RunOptions{Quiet: true}, e.exiftool, tools.ReadTagsArgs(path)...)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}

	md, err := ParseExiftoolMetadata(string(out))
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}

	e.logger.Debugf("Extracted metadata for %s: %dx%d", path, md.Width, md.Height)
	return md, nil
}

// IsImage reports whether the path has a recognized image extension.
func IsImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return slices.Contains(ImageExtensions(), ext)
}

// ImageExtensions returns the lower-case extensions treated as inputs.
func ImageExtensions() []string {
	return []string{".jpg", ".jpeg", ".png"}
}

// IsFatal reports whether an extraction error means the extractor itself
// cannot run, as opposed to one file being unreadable.
func IsFatal(err error) bool {
	return errors.Is(err, tools.ErrToolUnavailable)
}

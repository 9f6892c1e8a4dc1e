package tools

import (
	"strconv"
)

// Names holds the binaries used for each processing step.
type Names struct {
	Resize   string
	Encoder  string
	Exiftool string
}

// DefaultNames returns the stock tool names.
func DefaultNames() Names {
	return Names{
		Resize:   "magick",
		Encoder:  "cjpegli",
		Exiftool: "exiftool",
	}
}

// ResizeArgs builds a shrink-only resize invocation for the resize tool.
func ResizeArgs(in, out, geometry string) []string {
	return []string{in, "-resize", geometry, out}
}

// EncodeArgs builds a JPEG encoder invocation. quality is passed as the
// encoder's distance parameter.
func EncodeArgs(in, out string, quality float64, chroma, progressive int) []string {
	return []string{
		in, out,
		"--distance=" + strconv.FormatFloat(quality, 'f', -1, 64),
		"--chroma_subsampling=" + strconv.Itoa(chroma),
		"--progressive_level=" + strconv.Itoa(progressive),
	}
}

// CopyTagsArgs copies every tag from one file onto another in place.
func CopyTagsArgs(from, to string) []string {
	return []string{"-q", "-overwrite_original", "-TagsFromFile", from, "-all:all", to}
}

// StripTagsArgs removes all tags from a file in place.
func StripTagsArgs(to string) []string {
	return []string{"-q", "-overwrite_original", "-all=", to}
}

// ReadTagsArgs prints tags as "TagName : Value" lines.
func ReadTagsArgs(path string) []string {
	return []string{"-s", path}
}

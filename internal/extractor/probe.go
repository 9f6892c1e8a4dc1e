package extractor

import (
	"fmt"
	"sync"

	"github.com/barasher/go-exiftool"
)

// ExiftoolProber reads image dimensions through a long-lived exiftool
// process, which is much cheaper than one subprocess per output file.
type ExiftoolProber struct {
	et    *exiftool.Exiftool
	mutex sync.Mutex
}

// NewExiftoolProber starts the stay-open exiftool process. An empty binary
// uses exiftool from PATH.
func NewExiftoolProber(binary string) (*ExiftoolProber, error) {
	var opts []func(*exiftool.Exiftool) error
	if binary != "" {
		opts = append(opts, exiftool.SetExiftoolBinaryPath(binary))
	}
	et, err := exiftool.NewExiftool(opts...)
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	return &ExiftoolProber{et: et}, nil
}

// Dimensions returns ImageWidth and ImageHeight of path.
func (p *ExiftoolProber) Dimensions(path string) (int, int, error) {
	p.mutex.Lock()
	files := p.et.ExtractMetadata(path)
	p.mutex.Unlock()

	if len(files) == 0 {
		return 0, 0, fmt.Errorf("no metadata returned for %s", path)
	}
	if files[0].Err != nil {
		return 0, 0, files[0].Err
	}

	width, err := files[0].GetInt("ImageWidth")
	if err != nil {
		return 0, 0, fmt.Errorf("ImageWidth of %s: %w", path, err)
	}
	height, err := files[0].GetInt("ImageHeight")
	if err != nil {
		return 0, 0, fmt.Errorf("ImageHeight of %s: %w", path, err)
	}
	return int(width), int(height), nil
}

// Close stops the exiftool process.
func (p *ExiftoolProber) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.et.Close()
}

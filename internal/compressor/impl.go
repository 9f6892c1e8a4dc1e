package compressor

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"photo-resizer-go/internal/logger"
	"photo-resizer-go/internal/planner"
	"photo-resizer-go/internal/target"
	"photo-resizer-go/internal/tools"
	"photo-resizer-go/internal/workerpool"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// Options configures job execution.
type Options struct {
	// ReprocessExisting rebuilds outputs that already exist.
	ReprocessExisting bool
	// FailFast stops starting jobs after the first failure.
	FailFast      bool
	Concurrency   int
	Tools         tools.Names
	ResizeBackend string
	Progress      Progress
	// Quiet suppresses per-command debug logging.
	Quiet bool
}

// DefaultCompressor runs jobs with the external resize, encode and metadata
// tools.
type DefaultCompressor struct {
	logger *logrus.Logger
	runner tools.Runner
	opts   Options
}

// NewDefaultCompressor creates a new DefaultCompressor instance.
func NewDefaultCompressor(logger *logrus.Logger, runner tools.Runner, opts Options) *DefaultCompressor {
	if opts.Tools == (tools.Names{}) {
		opts.Tools = tools.DefaultNames()
	}
	if opts.ResizeBackend == "" {
		opts.ResizeBackend = BackendExternal
	}
	return &DefaultCompressor{logger: logger, runner: runner, opts: opts}
}

// Execute runs jobs on a bounded pool. In fail-fast mode the first job error
// is returned and unstarted jobs carry ErrNotStarted; otherwise every
// failure is recorded on its result and the combined error is returned.
func (c *DefaultCompressor) Execute(ctx context.Context, jobs []planner.Job) ([]ProcessResult, error) {
	results := make([]ProcessResult, len(jobs))
	started := make([]bool, len(jobs))

	err := workerpool.ForEach(ctx, c.opts.Concurrency, len(jobs), c.opts.FailFast, func(ctx context.Context, i int) error {
		started[i] = true
		res := c.processJob(ctx, jobs[i])
		results[i] = res
		if c.opts.Progress != nil {
			c.opts.Progress.JobDone(res)
		}
		if res.Err != nil {
			logger.WithJob(c.logger, jobs[i].InputPath, jobs[i].Target.Name).Errorf("Job failed: %v", res.Err)
		}
		return res.Err
	})

	for i, ok := range started {
		if !ok {
			results[i] = baseResult(jobs[i])
			results[i].Err = ErrNotStarted
		}
	}

	return results, err
}

// processJob runs or skips one job and reports the resulting sizes.
func (c *DefaultCompressor) processJob(ctx context.Context, job planner.Job) ProcessResult {
	res := baseResult(job)
	res.StartedAt = time.Now()
	defer func() { res.FinishedAt = time.Now() }()

	if !c.opts.ReprocessExisting && fileExists(job.OutputPath) {
		res.Skipped = true
		c.logger.Debugf("Skipping existing output: %s", job.OutputPath)
	} else if err := c.build(ctx, job); err != nil {
		res.Err = err
		return res
	}

	inInfo, err := os.Stat(job.InputPath)
	if err != nil {
		res.Err = &JobError{InputPath: job.InputPath, TargetName: job.Target.Name, Stage: "stat input", Err: err}
		return res
	}
	outInfo, err := os.Stat(job.OutputPath)
	if err != nil {
		res.Err = &JobError{InputPath: job.InputPath, TargetName: job.Target.Name, Stage: "stat output", Err: err}
		return res
	}

	res.InputSize = inInfo.Size()
	res.OutputSize = outInfo.Size()
	if res.InputSize > 0 {
		res.CompressionRatio = float64(res.OutputSize) / float64(res.InputSize)
	}
	return res
}

// build produces the output file. The encoder writes to a temporary file in
// the destination directory which is renamed into place only after the
// metadata step succeeds.
func (c *DefaultCompressor) build(ctx context.Context, job planner.Job) (err error) {
	fail := func(stage string, err error) error {
		return &JobError{InputPath: job.InputPath, TargetName: job.Target.Name, Stage: stage, Err: err}
	}

	outDir := filepath.Dir(job.OutputPath)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fail("create output dir", err)
	}

	partial, err := tempPath(outDir, "."+strings.TrimSuffix(filepath.Base(job.OutputPath), planner.OutputExt)+".*.partial"+planner.OutputExt)
	if err != nil {
		return fail("create temp file", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(partial)
		}
	}()

	source := job.InputPath
	if job.Target.Resizes() {
		resized, err := tempPath("", "photo-resizer-*.png")
		if err != nil {
			return fail("create temp file", err)
		}
		defer os.Remove(resized)

		if err := c.resize(ctx, job, job.Target.Geometry(), resized); err != nil {
			return fail("resize", err)
		}
		source = resized
	}

	run := tools.RunOptions{Quiet: c.opts.Quiet}

	encodeArgs := tools.EncodeArgs(source, partial, job.Target.Quality, job.ChromaSubsampling, job.ProgressiveLevel)
	if _, err := c.runner.Run(ctx, run, c.opts.Tools.Encoder, encodeArgs...); err != nil {
		return fail("encode", err)
	}

	if job.PreserveMetadata {
		if _, err := c.runner.Run(ctx, run, c.opts.Tools.Exiftool, tools.CopyTagsArgs(job.InputPath, partial)...); err != nil {
			return fail("copy metadata", err)
		}
	} else {
		if _, err := c.runner.Run(ctx, run, c.opts.Tools.Exiftool, tools.StripTagsArgs(partial)...); err != nil {
			return fail("strip metadata", err)
		}
	}

	if err := os.Rename(partial, job.OutputPath); err != nil {
		return fail("rename output", err)
	}

	logger.WithJob(c.logger, job.InputPath, job.Target.Name).Debugf("Wrote %s", job.OutputPath)
	return nil
}

// resize writes a shrunken copy of the job input to dst.
func (c *DefaultCompressor) resize(ctx context.Context, job planner.Job, geometry, dst string) error {
	if c.opts.ResizeBackend == BackendBuiltin {
		return resizeBuiltin(job.InputPath, dst, job.Target)
	}
	_, err := c.runner.Run(ctx, tools.RunOptions{Quiet: c.opts.Quiet}, c.opts.Tools.Resize, tools.ResizeArgs(job.InputPath, dst, geometry)...)
	return err
}

// resizeBuiltin shrinks src in-process so that it fits the target bounds,
// preserving aspect ratio and never enlarging.
func resizeBuiltin(src, dst string, t target.Target) error {
	img, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("open error: %w", err)
	}

	w, h := FitWithin(img.Bounds().Size(), t.MaxWidth, t.MaxHeight)
	if w != img.Bounds().Dx() || h != img.Bounds().Dy() {
		img = imaging.Resize(img, w, h, imaging.Lanczos)
	}

	if err := imaging.Save(img, dst); err != nil {
		return fmt.Errorf("save error: %w", err)
	}
	return nil
}

// FitWithin returns the largest size not exceeding maxWidth × maxHeight (a
// zero bound is unbounded) with the aspect ratio of size. Images already
// inside the bounds are returned unchanged.
func FitWithin(size image.Point, maxWidth, maxHeight int) (int, int) {
	w, h := size.X, size.Y
	if w <= 0 || h <= 0 {
		return w, h
	}

	scale := 1.0
	if maxWidth > 0 && w > maxWidth {
		scale = min(scale, float64(maxWidth)/float64(w))
	}
	if maxHeight > 0 && h > maxHeight {
		scale = min(scale, float64(maxHeight)/float64(h))
	}
	if scale == 1.0 {
		return w, h
	}

	nw := max(int(float64(w)*scale+0.5), 1)
	nh := max(int(float64(h)*scale+0.5), 1)
	if maxWidth > 0 {
		nw = min(nw, maxWidth)
	}
	if maxHeight > 0 {
		nh = min(nh, maxHeight)
	}
	return nw, nh
}

// baseResult fills the identifying fields of a result.
func baseResult(job planner.Job) ProcessResult {
	return ProcessResult{
		InputPath:   job.InputPath,
		InputRel:    job.InputRel,
		OutputPath:  job.OutputPath,
		OutputRel:   job.OutputRel,
		TargetName:  job.Target.Name,
		TargetIndex: job.TargetIndex,
	}
}

// tempPath reserves a unique empty file and returns its name.
func tempPath(dir, pattern string) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

// fileExists returns true if the given path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

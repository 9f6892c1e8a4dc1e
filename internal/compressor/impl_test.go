package compressor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"photo-resizer-go/internal/planner"
	"photo-resizer-go/internal/target"
	"photo-resizer-go/internal/tools"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// fakeRunner emulates the external tools: resize and encode copy their input
// to their output, exiftool is a no-op.
type fakeRunner struct {
	mutex  sync.Mutex
	calls  []string
	failOn string
}

func (r *fakeRunner) Run(_ context.Context, _ tools.RunOptions, name string, args ...string) ([]byte, error) {
	r.mutex.Lock()
	r.calls = append(r.calls, name+" "+strings.Join(args, " "))
	r.mutex.Unlock()

	if r.failOn != "" && strings.Contains(strings.Join(args, " "), r.failOn) {
		return nil, &tools.CommandError{Command: name, Args: args, ExitCode: 1, Err: errors.New("exit status 1")}
	}

	switch name {
	case "magick":
		return nil, copyFile(args[0], args[3])
	case "cjpegli":
		return nil, copyFile(args[0], args[1])
	}
	return nil, nil
}

func (r *fakeRunner) count(prefix string) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	n := 0
	for _, c := range r.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

type countingProgress struct{ n atomic.Int64 }

func (p *countingProgress) JobDone(ProcessResult) { p.n.Add(1) }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(&bytes.Buffer{})
	return l
}

func planJobs(t *testing.T, in, out string, names ...string) []planner.Job {
	t.Helper()
	var files []string
	for _, n := range names {
		p := filepath.Join(in, n)
		if err := os.WriteFile(p, []byte("source-"+n), 0644); err != nil {
			t.Fatal(err)
		}
		files = append(files, p)
	}
	targets := []target.Target{
		{Name: "thumb", Quality: 1.0, MaxWidth: 100, MaxHeight: 100},
		{Name: "full", Quality: 1.0},
	}
	jobs, err := planner.Plan(context.Background(), files, targets, planner.Options{InDir: in, OutDir: out, ChromaSubsampling: 420, ProgressiveLevel: 2})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	return jobs
}

func TestExecuteThenSkip(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	jobs := planJobs(t, in, out, "one.jpg", "two.jpg")

	runner := &fakeRunner{}
	progress := &countingProgress{}
	c := NewDefaultCompressor(quietLogger(), runner, Options{Concurrency: 2, Progress: progress})

	first, err := c.Execute(context.Background(), jobs)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(first) != 4 || progress.n.Load() != 4 {
		t.Fatalf("results = %d, progress = %d", len(first), progress.n.Load())
	}
	for _, r := range first {
		if r.Skipped || r.Err != nil {
			t.Fatalf("unexpected first-run result: %+v", r)
		}
		if r.CompressionRatio != 1.0 {
			t.Fatalf("ratio = %v, want 1 for a copying encoder", r.CompressionRatio)
		}
	}
	if runner.count("magick") != 2 || runner.count("cjpegli") != 4 || runner.count("exiftool") != 4 {
		t.Fatalf("unexpected tool calls: %v", runner.calls)
	}

	contents := make(map[string][]byte)
	for _, j := range jobs {
		data, err := os.ReadFile(j.OutputPath)
		if err != nil {
			t.Fatalf("read output: %v", err)
		}
		contents[j.OutputPath] = data
	}

	before := len(runner.calls)
	second, err := c.Execute(context.Background(), jobs)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	for _, r := range second {
		if !r.Skipped {
			t.Fatalf("expected skip on second run: %+v", r)
		}
		if r.OutputSize == 0 || r.InputSize == 0 {
			t.Fatalf("skipped jobs must still report sizes: %+v", r)
		}
		data, _ := os.ReadFile(r.OutputPath)
		if !bytes.Equal(data, contents[r.OutputPath]) {
			t.Fatalf("output %s changed", r.OutputPath)
		}
	}
	if len(runner.calls) != before {
		t.Fatalf("second run invoked tools: %v", runner.calls[before:])
	}
}

func TestExecuteReprocessExisting(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	jobs := planJobs(t, in, out, "one.jpg")

	runner := &fakeRunner{}
	c := NewDefaultCompressor(quietLogger(), runner, Options{ReprocessExisting: true})
	for i := 0; i < 2; i++ {
		results, err := c.Execute(context.Background(), jobs)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		for _, r := range results {
			if r.Skipped {
				t.Fatalf("run %d skipped %s", i, r.OutputPath)
			}
		}
	}
	if runner.count("cjpegli") != 4 {
		t.Fatalf("encoder calls = %d, want 4", runner.count("cjpegli"))
	}
}

func TestExecutePreserveMetadata(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	jobs := planJobs(t, in, out, "one.jpg")
	for i := range jobs {
		jobs[i].PreserveMetadata = true
	}

	runner := &fakeRunner{}
	c := NewDefaultCompressor(quietLogger(), runner, Options{})
	if _, err := c.Execute(context.Background(), jobs); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if runner.count("exiftool -q -overwrite_original -TagsFromFile") != 2 {
		t.Fatalf("expected tag copies, got %v", runner.calls)
	}
	if runner.count("exiftool -q -overwrite_original -all=") != 0 {
		t.Fatalf("tags must not be stripped when preserving: %v", runner.calls)
	}
}

func TestExecuteIsolatesFailures(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	jobs := planJobs(t, in, out, "good.jpg", "bad.jpg")

	runner := &fakeRunner{failOn: "bad_full"}
	c := NewDefaultCompressor(quietLogger(), runner, Options{})

	results, err := c.Execute(context.Background(), jobs)
	if err == nil {
		t.Fatal("expected combined error")
	}

	var failed int
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		failed++
		var jerr *JobError
		if !errors.As(r.Err, &jerr) || jerr.TargetName != "full" || !strings.HasSuffix(jerr.InputPath, "bad.jpg") {
			t.Fatalf("unexpected job error: %v", r.Err)
		}
		if _, statErr := os.Stat(r.OutputPath); !errors.Is(statErr, os.ErrNotExist) {
			t.Fatalf("failed job left output behind: %s", r.OutputPath)
		}
	}
	if failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}

	leftovers, _ := filepath.Glob(filepath.Join(out, ".*partial*"))
	if len(leftovers) != 0 {
		t.Fatalf("partial files left: %v", leftovers)
	}
}

func TestExecuteRemovesResizeTempFile(t *testing.T) {
	cases := map[string]struct {
		failOn string
		stage  string
	}{
		"encode fails": {failOn: "bad_thumb", stage: "encode"},
		"resize fails": {failOn: "-resize", stage: "resize"},
		"success":      {},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			tmp := t.TempDir()
			t.Setenv("TMPDIR", tmp)

			in, out := t.TempDir(), t.TempDir()
			jobs := planJobs(t, in, out, "bad.jpg")

			c := NewDefaultCompressor(quietLogger(), &fakeRunner{failOn: tc.failOn}, Options{})
			results, err := c.Execute(context.Background(), jobs)

			if tc.stage == "" {
				if err != nil {
					t.Fatalf("Execute: %v", err)
				}
			} else {
				var jerr *JobError
				if !errors.As(err, &jerr) || jerr.Stage != tc.stage || jerr.TargetName != "thumb" {
					t.Fatalf("expected %s failure on thumb, got %v", tc.stage, err)
				}
			}
			if len(results) != len(jobs) {
				t.Fatalf("results = %d, want %d", len(results), len(jobs))
			}

			leftovers, _ := filepath.Glob(filepath.Join(tmp, "photo-resizer-*.png"))
			if len(leftovers) != 0 {
				t.Fatalf("resize temp files left: %v", leftovers)
			}
		})
	}
}

func TestExecuteFailFast(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	jobs := planJobs(t, in, out, "a.jpg", "b.jpg", "c.jpg", "d.jpg")

	runner := &fakeRunner{failOn: ".partial"}
	c := NewDefaultCompressor(quietLogger(), runner, Options{FailFast: true, Concurrency: 1})

	results, err := c.Execute(context.Background(), jobs)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(results) != len(jobs) {
		t.Fatalf("results = %d, want %d", len(results), len(jobs))
	}
	var notStarted int
	for _, r := range results {
		if errors.Is(r.Err, ErrNotStarted) {
			notStarted++
		}
	}
	if notStarted == 0 {
		t.Fatal("fail-fast should leave later jobs unstarted")
	}
}

func TestBuiltinResize(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	src := filepath.Join(in, "big.png")
	img := imaging.New(400, 200, color.NRGBA{R: 200, A: 255})
	if err := imaging.Save(img, src); err != nil {
		t.Fatal(err)
	}

	jobs, err := planner.Plan(context.Background(), []string{src},
		[]target.Target{{Name: "small", Quality: 1.0, MaxWidth: 100}},
		planner.Options{InDir: in, OutDir: out})
	if err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{}
	c := NewDefaultCompressor(quietLogger(), runner, Options{ResizeBackend: BackendBuiltin})
	if _, err := c.Execute(context.Background(), jobs); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if runner.count("magick") != 0 {
		t.Fatalf("builtin backend must not call the resize tool")
	}

	// The fake encoder copies the resized PNG through unchanged.
	resized, err := imaging.Open(jobs[0].OutputPath)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	if got := resized.Bounds().Size(); got != image.Pt(100, 50) {
		t.Fatalf("size = %v, want 100x50", got)
	}
}

func TestFitWithin(t *testing.T) {
	cases := []struct {
		size         image.Point
		maxW, maxH   int
		wantW, wantH int
	}{
		{image.Pt(4000, 3000), 1920, 1080, 1440, 1080},
		{image.Pt(4000, 3000), 1000, 0, 1000, 750},
		{image.Pt(4000, 3000), 0, 300, 400, 300},
		{image.Pt(800, 600), 1920, 1080, 800, 600},
		{image.Pt(800, 600), 0, 0, 800, 600},
	}
	for _, tc := range cases {
		w, h := FitWithin(tc.size, tc.maxW, tc.maxH)
		if w != tc.wantW || h != tc.wantH {
			t.Fatalf("FitWithin(%v, %d, %d) = %dx%d, want %dx%d", tc.size, tc.maxW, tc.maxH, w, h, tc.wantW, tc.wantH)
		}
	}
}

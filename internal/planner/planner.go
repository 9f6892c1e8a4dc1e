package planner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"photo-resizer-go/internal/extractor"
	"photo-resizer-go/internal/hashcache"
	"photo-resizer-go/internal/target"
	"photo-resizer-go/internal/workerpool"

	"github.com/karrick/godirwalk"
)

// ErrNoImages is returned when the input set has no recognized images.
var ErrNoImages = errors.New("no images found")

// OutputExt is the extension of every produced file; the encoder writes JPEG.
const OutputExt = ".jpg"

// Job is one (input file, target) processing unit. Jobs are not modified
// after planning.
type Job struct {
	InputPath         string
	InputRel          string
	OutputPath        string
	OutputRel         string
	Target            target.Target
	TargetIndex       int
	ChromaSubsampling int
	ProgressiveLevel  int
	PreserveMetadata  bool
}

// Options controls job expansion.
type Options struct {
	InDir             string
	OutDir            string
	ChromaSubsampling int
	ProgressiveLevel  int
	PreserveMetadata  bool
	// ContentHash salts output names with a digest of the input so a
	// changed source gets a new output path instead of being skipped.
	ContentHash bool
	// Cache memoizes digests across runs; nil hashes every input.
	Cache       *hashcache.Cache
	Concurrency int
}

// Discover returns every recognized image under inDir in lexical order.
// When outDir lies inside inDir it is not descended into.
func Discover(inDir, outDir string) ([]string, error) {
	absIn, err := filepath.Abs(inDir)
	if err != nil {
		return nil, err
	}
	absOut := ""
	if outDir != "" {
		if absOut, err = filepath.Abs(outDir); err != nil {
			return nil, err
		}
	}

	var files []string
	err = godirwalk.Walk(absIn, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				if absOut != "" && path != absIn && isWithin(path, absOut) {
					return filepath.SkipDir
				}
				return nil
			}
			if !de.IsRegular() || !extractor.IsImage(path) {
				return nil
			}
			rel, err := filepath.Rel(absIn, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.Join(inDir, rel))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", inDir, err)
	}

	sort.Strings(files)
	return files, nil
}

// Plan expands inputFiles × targets into jobs. Inputs without a recognized
// image extension are dropped; an empty remainder is ErrNoImages.
func Plan(ctx context.Context, inputFiles []string, targets []target.Target, opts Options) ([]Job, error) {
	var images []string
	for _, f := range inputFiles {
		if extractor.IsImage(f) {
			images = append(images, f)
		}
	}
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	rels := make([]string, len(images))
	for i, f := range images {
		rel, err := filepath.Rel(opts.InDir, f)
		if err != nil || escapes(rel) {
			return nil, fmt.Errorf("input %s is outside %s", f, opts.InDir)
		}
		rels[i] = rel
	}

	digests := make([]string, len(images))
	if opts.ContentHash {
		err := workerpool.ForEach(ctx, opts.Concurrency, len(images), true, func(_ context.Context, i int) error {
			d, err := opts.Cache.Digest(images[i])
			if err != nil {
				return fmt.Errorf("hash %s: %w", images[i], err)
			}
			digests[i] = d
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	jobs := make([]Job, 0, len(images)*len(targets))
	owners := make(map[string]string, cap(jobs))

	for i, input := range images {
		for ti, t := range targets {
			outRel := OutputRel(rels[i], t.Name, digests[i])
			if prev, ok := owners[outRel]; ok {
				return nil, fmt.Errorf("output path collision: %s and %s both map to %s", prev, input, outRel)
			}
			owners[outRel] = input

			jobs = append(jobs, Job{
				InputPath:         input,
				InputRel:          rels[i],
				OutputPath:        filepath.Join(opts.OutDir, outRel),
				OutputRel:         outRel,
				Target:            t,
				TargetIndex:       ti,
				ChromaSubsampling: opts.ChromaSubsampling,
				ProgressiveLevel:  opts.ProgressiveLevel,
				PreserveMetadata:  opts.PreserveMetadata,
			})
		}
	}

	return jobs, nil
}

// OutputRel derives the output path, relative to the output directory, for
// an input path relative to the input directory.
func OutputRel(inputRel, targetName, digest string) string {
	dir := filepath.Dir(inputRel)
	base := strings.TrimSuffix(filepath.Base(inputRel), filepath.Ext(inputRel))
	name := base + "_" + targetName
	if digest != "" {
		name += "." + digest
	}
	return filepath.Join(dir, name+OutputExt)
}

// Unknown lists regular files under outDir that no job produces. The inDir
// subtree and paths in keep are never reported.
func Unknown(outDir, inDir string, jobs []Job, keep ...string) ([]string, error) {
	if _, err := os.Stat(outDir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	known := make(map[string]bool, len(jobs)+len(keep))
	for _, j := range jobs {
		known[absPath(j.OutputPath)] = true
		known[absPath(j.InputPath)] = true
	}
	for _, k := range keep {
		if k != "" {
			known[absPath(k)] = true
		}
	}

	absIn := ""
	if inDir != "" {
		absIn = absPath(inDir)
	}

	var unknown []string
	err := godirwalk.Walk(outDir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				if absIn != "" && isWithin(absPath(path), absIn) {
					return filepath.SkipDir
				}
				return nil
			}
			if !de.IsRegular() {
				return nil
			}
			if !known[absPath(path)] {
				unknown = append(unknown, path)
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", outDir, err)
	}

	sort.Strings(unknown)
	return unknown, nil
}

// isWithin reports whether path is dir or lies below it.
func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return !escapes(rel)
}

// escapes reports whether a relative path leaves its base directory. Names
// that merely start with ".." stay inside.
func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

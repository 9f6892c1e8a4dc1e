package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"photo-resizer-go/internal/compressor"
	"photo-resizer-go/internal/config"
	"photo-resizer-go/internal/extractor"
	"photo-resizer-go/internal/hashcache"
	"photo-resizer-go/internal/logger"
	"photo-resizer-go/internal/planner"
	"photo-resizer-go/internal/report"
	"photo-resizer-go/internal/statistics"
	"photo-resizer-go/internal/target"
	"photo-resizer-go/internal/workerpool"

	"github.com/pterm/pterm"
	"github.com/sirupsen/logrus"
)

// Processor runs a complete resize pass over one input directory.
type Processor struct {
	config     *config.Config
	logger     *logrus.Logger
	stats      *statistics.Statistics
	extractor  extractor.MetadataExtractor
	prober     extractor.DimensionProber
	compressor compressor.Compressor

	out      io.Writer
	quiet    bool
	progress *ProgressBar
}

// NewProcessor returns a new Processor. Tables and summaries go to stdout.
func NewProcessor(
	cfg *config.Config,
	logger *logrus.Logger,
	stats *statistics.Statistics,
	metadataExtractor extractor.MetadataExtractor,
	prober extractor.DimensionProber,
	compressor compressor.Compressor,
) *Processor {
	return &Processor{
		config:     cfg,
		logger:     logger,
		stats:      stats,
		extractor:  metadataExtractor,
		prober:     prober,
		compressor: compressor,
		out:        os.Stdout,
	}
}

// SetOutput redirects tables and summaries.
func (p *Processor) SetOutput(w io.Writer) {
	p.out = w
}

// SetQuiet suppresses tables and the summary.
func (p *Processor) SetQuiet(quiet bool) {
	p.quiet = quiet
}

// SetProgress attaches the bar the compressor reports to, so the processor
// can start and stop it around execution.
func (p *Processor) SetProgress(bar *ProgressBar) {
	p.progress = bar
}

// ProcessMany plans every (input, target) job, executes it, writes the
// metadata report, renders the results and reconciles the output directory.
// Isolated job failures are returned together after everything else ran.
func (p *Processor) ProcessMany(ctx context.Context) error {
	p.logger.Info("Starting resize run")
	p.stats.StartTime = time.Now()

	targets, err := target.ParseAll(p.config.Targets, p.config.Quality)
	if err != nil {
		return err
	}
	p.stats.AddTargets(len(targets))

	files, err := planner.Discover(p.config.InDir, p.config.OutDir)
	if err != nil {
		return fmt.Errorf("failed to discover files: %w", err)
	}
	p.stats.AddInputFiles(len(files))
	p.logger.Infof("Found %d images in %s", len(files), p.config.InDir)

	cache := p.openCache()
	defer cache.Close()

	jobs, err := planner.Plan(ctx, files, targets, planner.Options{
		InDir:             p.config.InDir,
		OutDir:            p.config.OutDir,
		ChromaSubsampling: p.config.ChromaSubsampling,
		ProgressiveLevel:  p.config.Progressive,
		PreserveMetadata:  p.config.PreserveMetadata,
		ContentHash:       p.config.ContentHash,
		Cache:             cache,
		Concurrency:       p.config.Performance.Concurrency,
	})
	if err != nil {
		return err
	}
	p.stats.AddJobsPlanned(len(jobs))

	if p.config.DryRun {
		p.logger.Info("Running in dry-run mode - no files will be written or deleted")
		return p.dryRun(jobs)
	}

	var originals map[string]extractor.Metadata
	if p.config.OutMetadata != "" {
		originals, err = p.extractAll(ctx, jobs)
		if err != nil {
			return err
		}
	}

	p.progress.Start(len(jobs))
	results, execErr := p.compressor.Execute(ctx, jobs)
	p.progress.Stop()

	p.recordResults(results)

	if p.config.OutMetadata != "" {
		if err := p.writeReport(jobs, results, originals); err != nil {
			return err
		}
	}

	sortResults(results)
	p.renderResults(results)

	if execErr != nil && p.config.FailFast {
		return fmt.Errorf("run aborted: %w", execErr)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := p.reconcileOutputDir(jobs); err != nil {
		return err
	}

	p.stats.Finalize()
	if !p.quiet {
		fmt.Fprintln(p.out, "\n"+p.stats.GetSummary())
	}

	if execErr != nil {
		return fmt.Errorf("%d of %d jobs failed: %w", p.stats.GetJobsFailed(), len(jobs), execErr)
	}
	p.logger.Info("Resize run completed")
	return nil
}

// openCache opens the content-hash cache. A cache that cannot be opened is
// not fatal; digests are then computed from scratch.
func (p *Processor) openCache() *hashcache.Cache {
	if !p.config.ContentHash || p.config.Cache.Path == "" {
		return nil
	}
	cache, err := hashcache.Open(p.config.Cache.Path)
	if err != nil {
		p.logger.Warnf("Could not open hash cache %s: %v", p.config.Cache.Path, err)
		return nil
	}
	return cache
}

// extractAll reads metadata of every planned input. Unreadable files are
// logged and left out; an extractor that cannot run at all aborts.
func (p *Processor) extractAll(ctx context.Context, jobs []planner.Job) (map[string]extractor.Metadata, error) {
	inputs := uniqueInputs(jobs)
	found := make([]*extractor.Metadata, len(inputs))

	err := workerpool.ForEach(ctx, p.config.Performance.Concurrency, len(inputs), true, func(ctx context.Context, i int) error {
		md, err := p.extractor.ReadMetadata(ctx, inputs[i].InputPath)
		if err != nil {
			if extractor.IsFatal(err) {
				return err
			}
			logger.WithFile(p.logger, inputs[i].InputPath).Warnf("Could not read metadata: %v", err)
			p.stats.IncrementMetadataFailures()
			p.stats.AddError(inputs[i].InputPath, "metadata_extraction", err.Error())
			return nil
		}
		found[i] = md
		p.stats.IncrementMetadataExtracted()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("metadata extraction failed: %w", err)
	}

	originals := make(map[string]extractor.Metadata, len(inputs))
	for i, md := range found {
		if md != nil {
			originals[reportKey(inputs[i].InputRel)] = *md
		}
	}
	return originals, nil
}

// recordResults updates run statistics from job results.
func (p *Processor) recordResults(results []compressor.ProcessResult) {
	for _, res := range results {
		switch {
		case res.Err != nil:
			p.stats.IncrementJobsFailed()
			if !errors.Is(res.Err, compressor.ErrNotStarted) {
				p.stats.AddError(res.InputPath, "job:"+res.TargetName, res.Err.Error())
			}
		case res.Skipped:
			p.stats.IncrementJobsSkipped()
			p.stats.AddBytes(res.InputSize, res.OutputSize)
		default:
			p.stats.IncrementJobsProcessed()
			p.stats.AddBytes(res.InputSize, res.OutputSize)
		}
	}
}

// writeReport merges this run into the report file. Every planned input is
// live even when its metadata could not be read, so earlier entries for it
// survive; processed entries are live while their output exists.
func (p *Processor) writeReport(jobs []planner.Job, results []compressor.ProcessResult, originals map[string]extractor.Metadata) error {
	fresh := report.New()
	for k, v := range originals {
		fresh.Original[k] = v
	}

	live := report.KeySet{
		Original:  make(map[string]bool),
		Processed: make(map[string]bool),
	}
	for _, job := range jobs {
		live.Original[reportKey(job.InputRel)] = true
		if fileExists(job.OutputPath) {
			live.Processed[reportKey(job.OutputRel)] = true
		}
	}

	for _, res := range results {
		if res.Err != nil {
			continue
		}
		width, height, err := p.prober.Dimensions(res.OutputPath)
		if err != nil {
			logger.WithFile(p.logger, res.OutputPath).Warnf("Could not read output dimensions: %v", err)
			continue
		}
		fresh.Processed[reportKey(res.OutputRel)] = report.Processed{
			OriginalRelativePath: reportKey(res.InputRel),
			Width:                width,
			Height:               height,
		}
	}

	_, pruned, err := report.Reconcile(fresh, live, p.config.OutMetadata, p.logger)
	if err != nil {
		return fmt.Errorf("failed to write metadata report: %w", err)
	}
	p.stats.AddReportKeysPruned(pruned.Len())
	logger.WithOperation(p.logger, "report").Infof("Wrote metadata report %s", p.config.OutMetadata)
	return nil
}

// reconcileOutputDir deletes or lists files in the output directory that
// this run did not plan.
func (p *Processor) reconcileOutputDir(jobs []planner.Job) error {
	unknown, err := planner.Unknown(p.config.OutDir, p.config.InDir, jobs,
		p.config.OutMetadata, p.config.Cache.Path, p.config.Logging.FilePath)
	if err != nil {
		return fmt.Errorf("failed to scan output directory: %w", err)
	}
	p.stats.AddUnknownFiles(len(unknown))

	for _, path := range unknown {
		if !p.config.DeleteUnknown {
			logger.WithFile(p.logger, path).Warn("Unknown file in output directory")
			continue
		}
		if err := os.Remove(path); err != nil {
			logger.WithFile(p.logger, path).Errorf("Could not delete unknown file: %v", err)
			p.stats.AddError(path, "delete_unknown", err.Error())
			continue
		}
		p.stats.IncrementUnknownFilesDeleted()
		logger.WithFile(p.logger, path).Info("Deleted unknown file")
	}
	return nil
}

// dryRun lists what a real run would build without touching the output directory.
func (p *Processor) dryRun(jobs []planner.Job) error {
	data := pterm.TableData{{"Input", "Target", "Output", "Action"}}
	for _, job := range jobs {
		action := "build"
		if !p.config.ReprocessExisting && fileExists(job.OutputPath) {
			action = "skip"
		}
		data = append(data, []string{job.InputRel, job.Target.String(), job.OutputRel, action})
	}
	return p.renderTable(data)
}

// renderResults prints one row per job.
func (p *Processor) renderResults(results []compressor.ProcessResult) {
	data := pterm.TableData{{"Input", "Target", "Output", "Size", "Ratio", "Status"}}
	for _, res := range results {
		status := "done"
		switch {
		case res.Err != nil:
			status = "failed"
			if errors.Is(res.Err, compressor.ErrNotStarted) {
				status = "not started"
			}
		case res.Skipped:
			status = "skipped"
		}

		size, ratio := "-", "-"
		if res.Err == nil {
			size = statistics.FormatBytes(res.OutputSize)
			ratio = fmt.Sprintf("%.3f", res.CompressionRatio)
		}
		data = append(data, []string{res.InputRel, res.TargetName, res.OutputRel, size, ratio, status})
	}
	if err := p.renderTable(data); err != nil {
		p.logger.Warnf("Could not render results: %v", err)
	}
}

func (p *Processor) renderTable(data pterm.TableData) error {
	if p.quiet {
		return nil
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(p.out, table)
	return nil
}

// sortResults orders results by input path, then target declaration order.
func sortResults(results []compressor.ProcessResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].InputPath != results[j].InputPath {
			return results[i].InputPath < results[j].InputPath
		}
		return results[i].TargetIndex < results[j].TargetIndex
	})
}

// uniqueInputs returns the first job of every input file, in plan order.
func uniqueInputs(jobs []planner.Job) []planner.Job {
	seen := make(map[string]bool, len(jobs))
	var inputs []planner.Job
	for _, job := range jobs {
		if seen[job.InputPath] {
			continue
		}
		seen[job.InputPath] = true
		inputs = append(inputs, job)
	}
	return inputs
}

// reportKey makes report keys independent of the host path separator.
func reportKey(rel string) string {
	return filepath.ToSlash(rel)
}

// fileExists returns true if the given path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

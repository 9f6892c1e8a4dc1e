package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"photo-resizer-go/internal/compressor"
	"photo-resizer-go/internal/config"
	"photo-resizer-go/internal/extractor"
	"photo-resizer-go/internal/logger"
	"photo-resizer-go/internal/processor"
	"photo-resizer-go/internal/statistics"
	"photo-resizer-go/internal/target"
	"photo-resizer-go/internal/tools"

	"github.com/pterm/pterm"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	verbose   bool
	quiet     bool
	version   = "dev"
	buildTime string

	v = viper.New()
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "photo-resizer [flags] target...",
	Short: "Batch resize and recompress photos into multiple targets",
	Long: `photo-resizer converts every JPEG and PNG below an input directory into one
output file per target. A target is written as

  name:quality:maxWidth:maxHeight

where every field but the name may be empty, for example "thumb::200:200"
or "full:1.0::". Outputs that already exist are skipped, so repeated runs
only do new work.

Features:
- Shrink-only resizing that preserves aspect ratio
- JPEG recompression with configurable chroma subsampling and progressive scans
- Metadata stripping by default, or copying with --preserve-metadata
- A JSON report correlating original and processed files
- Removal of stale files from the output directory with --delete-unknown`,
	Args:          cobra.ArbitraryArgs,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResize(cmd.Context(), args)
	},
}

// inspectCmd prints the normalized metadata of one file.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show the metadata that would be recorded for a file",
	Long: `Reads a single image with exiftool and prints the normalized metadata record
as JSON. This is useful for debugging report contents.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(cmd.Context(), args[0])
	},
}

// toolsCmd reports whether the external programs can be found.
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Check that the configured external tools are installed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTools()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	flags := rootCmd.Flags()
	flags.String("in-dir", "", "directory containing the source images")
	flags.String("out-dir", "", "directory receiving the processed images")
	flags.Int("chroma-subsampling", 420, "chroma subsampling mode (420, 422, 440, 444)")
	flags.Int("progressive", 2, "progressive scan level (0, 1, 2)")
	flags.Float64("quality", 1.0, "quality used by targets that do not set one")
	flags.Bool("preserve-metadata", false, "copy metadata from inputs instead of stripping it")
	flags.String("out-metadata", "", "write a JSON metadata report to this path")
	flags.Bool("reprocess-existing", false, "rebuild outputs that already exist")
	flags.Bool("delete-unknown", false, "delete files in the output directory that no target produces")
	flags.Bool("content-hash", true, "salt output names with a hash of the input contents")
	flags.Bool("fail-fast", false, "stop at the first failed job")
	flags.Bool("dry-run", false, "show the planned jobs without writing anything")
	flags.Int("concurrency", 0, "jobs in flight (default one per logical CPU)")

	bindings := map[string]string{
		"in_dir":                  "in-dir",
		"out_dir":                 "out-dir",
		"chroma_subsampling":      "chroma-subsampling",
		"progressive":             "progressive",
		"quality":                 "quality",
		"preserve_metadata":       "preserve-metadata",
		"out_metadata":            "out-metadata",
		"reprocess_existing":      "reprocess-existing",
		"delete_unknown":          "delete-unknown",
		"content_hash":            "content-hash",
		"fail_fast":               "fail-fast",
		"dry_run":                 "dry-run",
		"performance.concurrency": "concurrency",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("photo-resizer {{.Version}} (built %s)\n", buildTime))

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(toolsCmd)
}

// runResize executes the main resize logic.
func runResize(ctx context.Context, args []string) error {
	if len(args) > 0 {
		v.Set("targets", args)
	}

	cfg, err := config.LoadConfig(v, cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := setupLogger(cfg)

	// Malformed targets are reported before anything else can fail.
	if _, err := target.ParseAll(cfg.Targets, cfg.Quality); err != nil {
		return err
	}

	if !cfg.DryRun {
		if err := tools.Check(requiredTools(cfg)...); err != nil {
			return err
		}
	}

	var prober extractor.DimensionProber
	if cfg.OutMetadata != "" && !cfg.DryRun {
		p, err := extractor.NewExiftoolProber(cfg.Tools.Exiftool)
		if err != nil {
			return err
		}
		defer p.Close()
		prober = p
	}

	runner := tools.NewExecRunner(log)
	bar := processor.NewProgressBar(!quiet && cfg.Performance.ShowProgress)
	comp := compressor.NewDefaultCompressor(log, runner, compressor.Options{
		ReprocessExisting: cfg.ReprocessExisting,
		FailFast:          cfg.FailFast,
		Concurrency:       cfg.Performance.Concurrency,
		Tools:             toolNames(cfg),
		ResizeBackend:     cfg.Tools.ResizeBackend,
		Progress:          bar,
		Quiet:             !verbose,
	})

	stats := statistics.NewStatistics()
	proc := processor.NewProcessor(cfg, log, stats,
		extractor.NewExiftoolExtractor(log, runner, cfg.Tools.Exiftool), prober, comp)
	proc.SetProgress(bar)
	proc.SetQuiet(quiet)

	if err := proc.ProcessMany(ctx); err != nil {
		if !quiet && stats.GetJobsFailed() > 0 {
			fmt.Fprintln(os.Stderr, stats.GetErrorSummary())
		}
		return fmt.Errorf("resize failed: %w", err)
	}
	return nil
}

// runInspect prints the metadata record of filePath.
func runInspect(ctx context.Context, filePath string) error {
	if !fileExists(filePath) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := setupLogger(cfg)

	ext := extractor.NewExiftoolExtractor(log, tools.NewExecRunner(log), cfg.Tools.Exiftool)
	md, err := ext.ReadMetadata(ctx, filePath)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// runTools prints where each configured tool resolves to.
func runTools() error {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	names := toolNames(cfg)
	data := pterm.TableData{{"Step", "Tool", "Path"}}
	for _, row := range [][2]string{
		{"resize", names.Resize},
		{"encode", names.Encoder},
		{"metadata", names.Exiftool},
	} {
		path := tools.Lookup(row[1])
		if path == "" {
			path = "not found"
		}
		data = append(data, []string{row[0], row[1], path})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Println(table)

	return tools.Check(requiredTools(cfg)...)
}

// requiredTools lists the binaries a run with cfg invokes.
func requiredTools(cfg *config.Config) []string {
	names := toolNames(cfg)
	required := []string{names.Encoder, names.Exiftool}
	if cfg.Tools.ResizeBackend != compressor.BackendBuiltin {
		required = append(required, names.Resize)
	}
	return required
}

func toolNames(cfg *config.Config) tools.Names {
	names := tools.DefaultNames()
	if cfg.Tools.Resize != "" {
		names.Resize = cfg.Tools.Resize
	}
	if cfg.Tools.Encoder != "" {
		names.Encoder = cfg.Tools.Encoder
	}
	if cfg.Tools.Exiftool != "" {
		names.Exiftool = cfg.Tools.Exiftool
	}
	return names
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.DefaultConfig()
	loggerCfg.Level = cfg.Logging.Level
	loggerCfg.FilePath = cfg.Logging.FilePath
	loggerCfg.MaxSize = cfg.Logging.MaxSize
	loggerCfg.MaxBackups = cfg.Logging.MaxBackups
	loggerCfg.MaxAge = cfg.Logging.MaxAge
	loggerCfg.Compress = cfg.Logging.Compress
	loggerCfg.Console = true

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetOutput(os.Stderr)
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// fileExists returns true if the given path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

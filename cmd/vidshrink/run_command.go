package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"vidshrink/internal/api"
	"vidshrink/internal/config"
	"vidshrink/internal/estimate"
	"vidshrink/internal/history"
	"vidshrink/internal/logging"
	"vidshrink/internal/media/ffprobe"
	"vidshrink/internal/pipeline"
	"vidshrink/internal/preflight"
	"vidshrink/internal/selection"
	"vidshrink/internal/services"
)

type runOptions struct {
	source      string
	excludes    []string
	invert      bool
	replace     bool
	coefficient float64
	dryRun      bool
	apiBind     string
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [PATH...]",
		Short: "Compress the selected videos",
		Long: "Scan the source directory and compress every video, or only the given files and\n" +
			"directories. --exclude unchecks paths after selection and --invert flips every file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg, err := applyRunFlags(cmd, base, opts)
			if err != nil {
				return err
			}
			return runCompression(cmd, ctx, cfg, args, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.source, "source", "", "Source directory (overrides paths.source_dir)")
	flags.StringArrayVar(&opts.excludes, "exclude", nil, "Path to leave out; repeatable")
	flags.BoolVar(&opts.invert, "invert", false, "Invert the selection of files")
	flags.BoolVar(&opts.replace, "replace", false, "Replace each source with its compressed version")
	flags.Float64Var(&opts.coefficient, "coefficient", 0, "Quantization coefficient (overrides config)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Probe and report decisions without encoding")
	flags.StringVar(&opts.apiBind, "api-bind", "", "Serve the status API on this address during the run")
	return cmd
}

// applyRunFlags returns a copy of base with flag overrides applied and
// validated; base itself is left untouched.
func applyRunFlags(cmd *cobra.Command, base *config.Config, opts runOptions) (*config.Config, error) {
	cfg := *base
	flags := cmd.Flags()
	if flags.Changed("source") {
		expanded, err := config.ExpandPath(strings.TrimSpace(opts.source))
		if err != nil {
			return nil, fmt.Errorf("resolve --source: %w", err)
		}
		cfg.Paths.SourceDir = expanded
	}
	if flags.Changed("replace") {
		cfg.Encoding.ReplaceSource = opts.replace
	}
	if flags.Changed("coefficient") {
		cfg.Encoding.QuantizationCoefficient = opts.coefficient
	}
	if flags.Changed("api-bind") {
		cfg.API.Bind = strings.TrimSpace(opts.apiBind)
	}
	if cfg.Paths.SourceDir == "" {
		return nil, errors.New("no source directory: set paths.source_dir or pass --source")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func runCompression(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, args []string, opts runOptions) error {
	logger := ctx.log()
	settings := cfg.Settings()

	if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg)); len(failed) > 0 {
		details := make([]string, 0, len(failed))
		for _, r := range failed {
			details = append(details, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
		return fmt.Errorf("preflight failed: %s", strings.Join(details, "; "))
	}
	if !settings.CoefficientInRecommendedRange() {
		logging.WarnWithContext(logger, "quantization coefficient outside recommended range", "coefficient_out_of_range",
			logging.Float64("coefficient", settings.QuantizationCoefficient),
			logging.String(logging.FieldErrorHint, "0.07-0.15 balances size and quality"),
			logging.String(logging.FieldImpact, "outputs may be much larger or visibly degraded"),
		)
	}

	tree, err := buildSelection(cfg, args, opts)
	if err != nil {
		return err
	}
	checked, total := tree.Counts()
	if checked == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Nothing selected (%d videos found under %s)\n", total, cfg.Paths.SourceDir)
		return nil
	}

	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.dryRun {
		return printDryRun(signalCtx, cmd.OutOrStdout(), settings, tree)
	}

	store, err := history.Open(cfg)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	runID := uuid.NewString()
	runCtx := services.WithRequestID(signalCtx, runID)
	tracker := pipeline.NewTracker()

	if cfg.API.Bind != "" {
		srv := api.New(cfg.API.Bind, store, tracker, logger)
		if err := srv.Start(runCtx); err != nil {
			return err
		}
		defer srv.Stop()
	}

	pipelineOpts := []pipeline.Option{
		pipeline.WithLocker(pipeline.NewLocker(cfg.LockDir())),
		pipeline.WithObserver(tracker.Observe),
		pipeline.WithRunID(runID),
	}
	if errOut := cmd.ErrOrStderr(); shouldColorize(errOut) {
		pipelineOpts = append(pipelineOpts, pipeline.WithObserver(newProgressPrinter(errOut).observe))
	}

	logging.WithContext(runCtx, logger).Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("selected", checked),
		logging.String("source_dir", cfg.Paths.SourceDir),
		logging.Float64("coefficient", settings.QuantizationCoefficient),
		logging.Bool("replace_source", settings.ReplaceSource),
	)
	p := pipeline.New(settings, store, logging.WithContext(runCtx, logger), pipelineOpts...)
	summary, runErr := p.Run(runCtx, tree.CollectChecked())

	printSummary(cmd.OutOrStdout(), summary)
	if runErr != nil {
		return runErr
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", summary.Failed, len(summary.Jobs))
	}
	return nil
}

// buildSelection scans the source tree and applies the positional paths,
// excludes and inversion in that order.
func buildSelection(cfg *config.Config, args []string, opts runOptions) (*selection.Tree, error) {
	tree, err := selection.Scan(cfg.Paths.SourceDir, selection.ScanOptions{
		Extensions:   cfg.Encoding.Extensions,
		OutputSuffix: cfg.Encoding.OutputSuffix,
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", cfg.Paths.SourceDir, err)
	}

	toggle := func(raw string, state selection.State) error {
		path, err := filepath.Abs(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		if _, err := tree.Toggle(path, state); err != nil {
			return fmt.Errorf("select %s: %w", raw, err)
		}
		return nil
	}

	if len(args) == 0 {
		if _, err := tree.Toggle(tree.Root(), selection.Checked); err != nil {
			return nil, err
		}
	}
	for _, arg := range args {
		if err := toggle(arg, selection.Checked); err != nil {
			return nil, err
		}
	}
	for _, exclude := range opts.excludes {
		if err := toggle(exclude, selection.Unchecked); err != nil {
			return nil, err
		}
	}
	if opts.invert {
		tree.InvertLeaves()
	}
	return tree, nil
}

func printDryRun(ctx context.Context, out io.Writer, settings config.Settings, tree *selection.Tree) error {
	spec := tableSpec{
		headers: []string{"File", "Video", "Current", "Target", "Decision"},
		aligns:  []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	}
	for path := range tree.CollectChecked() {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := filepath.Base(path)
		probe, err := ffprobe.Probe(ctx, settings.FFprobe, path)
		if err != nil {
			spec.add(name, "-", "-", "-", "probe failed")
			continue
		}
		current := "unknown"
		if probe.BitRateKnown {
			current = estimate.FormatMbps(probe.BitRate)
		}
		decision, err := estimate.Plan(probe, settings.QuantizationCoefficient, settings.SkipThreshold)
		if err != nil {
			spec.add(name, probe.String(), current, "-", "estimate unavailable")
			continue
		}
		spec.add(name, probe.String(), current, estimate.FormatMbps(decision.TargetBitRate), verdictFor(decision))
	}
	fmt.Fprintln(out, spec.render())
	return nil
}

func printSummary(out io.Writer, summary pipeline.Summary) {
	if len(summary.Jobs) == 0 {
		return
	}
	spec := tableSpec{
		headers: []string{"File", "Result", "Original", "New", "Ratio", "Impact", "Elapsed"},
		aligns:  []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignRight},
	}
	var failures []string
	for _, job := range summary.Jobs {
		impact := "-"
		if job.Quality.Label != "" {
			impact = job.Quality.Label
		}
		spec.add(
			job.FileName(),
			titleStatus(jobResult(job)),
			formatBytes(job.OriginalSize),
			formatBytes(job.CompressedSize),
			formatRatio(job.Ratio()),
			impact,
			formatElapsed(job.Elapsed),
		)
		if job.Err != nil && job.State != pipeline.StateDone {
			failures = append(failures, fmt.Sprintf("  %s: %v", job.FileName(), job.Err))
		}
	}
	spec.footer = []string{
		fmt.Sprintf("%d done, %d skipped, %d failed", summary.Completed+summary.Degraded, summary.Skipped, summary.Failed+summary.Cancelled),
		"", "", "", "", "saved", formatBytes(summary.SavedBytes),
	}
	fmt.Fprintln(out, spec.render())
	for _, line := range failures {
		fmt.Fprintln(out, line)
	}
}

func jobResult(job pipeline.Job) string {
	switch job.State {
	case pipeline.StateDone:
		if job.Degraded {
			return history.StatusCompletedDegraded
		}
		return history.StatusCompleted
	default:
		return string(job.State)
	}
}

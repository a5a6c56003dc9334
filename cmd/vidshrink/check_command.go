package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vidshrink/internal/estimate"
	"vidshrink/internal/media/ffprobe"
	"vidshrink/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var probePath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify directories and external tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintf(out, "Config: %s\n", dash(ctx.configPath))
			results := preflight.RunAll(cmd.Context(), cfg)
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			settings := cfg.Settings()
			coefKind := statusOK
			if !settings.CoefficientInRecommendedRange() {
				coefKind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Coefficient", coefKind, fmt.Sprintf("%g (recommended 0.07-0.15)", settings.QuantizationCoefficient), colorize))

			if probePath = strings.TrimSpace(probePath); probePath != "" {
				if err := printProbe(cmd, settings.FFprobe, probePath, settings.QuantizationCoefficient, settings.SkipThreshold); err != nil {
					return err
				}
			}

			if failed := preflight.Failed(results); len(failed) > 0 {
				names := make([]string, 0, len(failed))
				for _, r := range failed {
					names = append(names, r.Name)
				}
				return fmt.Errorf("checks failed: %s", strings.Join(names, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&probePath, "probe", "", "Inspect a video and show the compression decision")
	return cmd
}

func printProbe(cmd *cobra.Command, ffprobeBin, path string, coefficient, threshold float64) error {
	out := cmd.OutOrStdout()
	probe, err := ffprobe.Probe(cmd.Context(), ffprobeBin, path)
	if err != nil {
		return err
	}
	inspect, inspectErr := ffprobe.Inspect(cmd.Context(), ffprobeBin, path)

	spec := tableSpec{headers: []string{"Property", "Value"}}
	spec.add("File", path)
	spec.add("Video", probe.String())
	if inspectErr == nil {
		spec.add("Streams", fmt.Sprintf("%d video, %d audio, %d subtitle",
			inspect.StreamCount("video"), inspect.StreamCount("audio"), inspect.StreamCount("subtitle")))
		spec.add("Created", dash(inspect.CreationTime()))
	}
	if decision, err := estimate.Plan(probe, coefficient, threshold); err != nil {
		spec.add("Target", err.Error())
	} else {
		spec.add("Target", estimate.FormatMbps(decision.TargetBitRate))
		spec.add("Decision", verdictFor(decision)+": "+decision.Reason)
	}
	fmt.Fprintln(out, spec.render())
	return nil
}

func verdictFor(decision estimate.Decision) string {
	if decision.Skip {
		return "skip"
	}
	return "compress"
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"smallarea/internal/codec"
	"smallarea/internal/config"
	"smallarea/internal/core/direct"
	"smallarea/internal/domain"
	"smallarea/internal/loader"
)

type estimateOptions struct {
	observations      string
	frame             string
	scenario          string
	format            string
	output            string
	coverage          bool
	parallelism       int
	rejectZeroWeights bool
}

func newRootCmd() *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "sae",
		Short: "Direct small area estimation from survey samples",
		Long: `sae computes design-based direct estimates of domain means and their
variances under one of four sampling-design scenarios (A-D).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger := config.LogConfig{Level: logLevel, Format: "text"}.NewLogger(cmd.ErrOrStderr())
			slog.SetDefault(logger)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newEstimateCmd(), newScenariosCmd(), newFingerprintCmd(), newInitConfigCmd())
	return rootCmd
}

func newEstimateCmd() *cobra.Command {
	opts := &estimateOptions{}

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate domain means and variances from an observations file",
		Example: `  sae estimate --observations obs.csv --frame frame.csv --scenario A
  sae estimate --observations survey.yaml --scenario B --format json --coverage`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEstimate(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.observations, "observations", "i", "", "observations file (csv, tsv, json, yaml)")
	flags.StringVarP(&opts.frame, "frame", "f", "", "population frame file; replaces any frame embedded in the observations")
	flags.StringVarP(&opts.scenario, "scenario", "s", string(domain.ScenarioA), "design scenario (A, B, C, D)")
	flags.StringVar(&opts.format, "format", "", "output format (csv, tsv, json, yaml); default csv, or the --output extension")
	flags.StringVarP(&opts.output, "output", "o", "", "write to a file instead of stdout")
	flags.BoolVar(&opts.coverage, "coverage", false, "include frame domains without observations")
	flags.IntVar(&opts.parallelism, "parallelism", 0, "domains estimated concurrently (0 = GOMAXPROCS)")
	flags.BoolVar(&opts.rejectZeroWeights, "reject-zero-weights", false, "treat a zero sampling weight as invalid")
	_ = cmd.MarkFlagRequired("observations")

	return cmd
}

func runEstimate(ctx context.Context, opts *estimateOptions, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	scenario, err := domain.ParseScenario(opts.scenario)
	if err != nil {
		return err
	}
	if opts.parallelism < 0 {
		return fmt.Errorf("--parallelism must not be negative, got %d", opts.parallelism)
	}

	survey, err := loader.LoadSurvey(opts.observations, opts.frame)
	if err != nil {
		return err
	}

	estimator := direct.New(
		direct.WithParallelism(opts.parallelism),
		direct.WithRejectZeroWeights(opts.rejectZeroWeights),
	)
	result, err := estimator.EstimateScenario(ctx, survey.Observations, survey.Frame, scenario)
	if err != nil {
		return err
	}
	fingerprint, err := estimator.Fingerprint(survey.Observations, survey.Frame, scenario)
	if err != nil {
		return err
	}

	for _, w := range result.WarningStrings() {
		fmt.Fprintf(stderr, "warning: %s\n", w)
	}
	slog.Info("estimation complete",
		"survey", survey.Name,
		"scenario", scenario,
		"domains", len(result.Estimates),
		"warnings", len(result.Warnings))

	run := &domain.EstimationRun{
		Scenario:    scenario,
		Fingerprint: fingerprint,
		Estimates:   result.Estimates,
		Warnings:    result.WarningStrings(),
	}

	// Without --format, an output file's extension picks the format
	if opts.output != "" && opts.format == "" && !opts.coverage {
		return loader.WriteRun(run, opts.output)
	}

	format := opts.format
	if format == "" {
		format = "csv"
	}

	out := stdout
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	if opts.coverage {
		return codec.ExportCoverage(domain.Coverage(survey.Frame, result.Estimates), format, out)
	}

	exp, err := codec.NewExporter(format)
	if err != nil {
		return err
	}
	return exp.Export(run, out)
}

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the supported design scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCENARIO\tWEIGHTS\tDOMAIN SIZE\tREPLACEMENT\tDESCRIPTION")
			for _, s := range domain.AllScenarios {
				c := s.Config()
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s,
					yesNo(c.UseWeights), yesNo(c.UseDomainSize), yesNo(c.WithReplacement), s.Description())
			}
			return tw.Flush()
		},
	}
}

func newFingerprintCmd() *cobra.Command {
	var observations, frame, scenario string
	var rejectZeroWeights bool

	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the input digest that keys cached estimation runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := domain.ParseScenario(scenario)
			if err != nil {
				return err
			}
			survey, err := loader.LoadSurvey(observations, frame)
			if err != nil {
				return err
			}
			estimator := direct.New(direct.WithRejectZeroWeights(rejectZeroWeights))
			digest, err := estimator.Fingerprint(survey.Observations, survey.Frame, s)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), digest)
			return nil
		},
	}

	cmd.Flags().StringVarP(&observations, "observations", "i", "", "observations file")
	cmd.Flags().StringVarP(&frame, "frame", "f", "", "population frame file")
	cmd.Flags().StringVarP(&scenario, "scenario", "s", string(domain.ScenarioA), "design scenario (A, B, C, D)")
	cmd.Flags().BoolVar(&rejectZeroWeights, "reject-zero-weights", false, "digest under the zero-weight rejection policy")
	_ = cmd.MarkFlagRequired("observations")
	return cmd
}

func newInitConfigCmd() *cobra.Command {
	var path string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a server config file with default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = config.DefaultConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !overwrite {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "config file to write (default: XDG config home)")
	cmd.Flags().BoolVar(&overwrite, "force", false, "overwrite an existing file")
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}


package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kekexiaoai/check-rds/internal/config"
	"github.com/kekexiaoai/check-rds/internal/logging"
	"github.com/kekexiaoai/check-rds/pkg/check"
	"github.com/kekexiaoai/check-rds/pkg/cloudwatch"
	"github.com/kekexiaoai/check-rds/pkg/inspection"
	"github.com/kekexiaoai/check-rds/pkg/prom"
	"github.com/kekexiaoai/check-rds/pkg/rds"
	"github.com/kekexiaoai/check-rds/pkg/sampler"
)

const epilog = `thresholds and ranges:
  Threshold ranges are in Nagios format:
  https://nagios-plugins.org/doc/guidelines.html#THRESHOLDFORMAT
  For disk threshold you can specify a unit (e.g. "1000Mi:", "8Gi")
  Every flag can also be set as CHECK_RDS_<FLAG>, e.g. CHECK_RDS_WARN_CPU=80`

// app holds the collaborators of one run; tests replace them with fakes.
type app struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time

	loadAWS     func(ctx context.Context, region string) (aws.Config, error)
	newSource   func(cfg config.Config, awsCfg aws.Config, logger *zap.Logger) (sampler.Source, error)
	newMetadata func(awsCfg aws.Config, logger *zap.Logger) check.MetadataProvider

	exitCode int
}

func defaultApp() *app {
	return &app{
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		now:         time.Now,
		loadAWS:     loadAWSConfig,
		newSource:   newSource,
		newMetadata: newMetadata,
	}
}

// Execute runs the command line and returns the plugin exit code.
func Execute(args []string) int {
	return defaultApp().execute(args)
}

func (a *app) execute(args []string) int {
	a.exitCode = inspection.StateUnknown.ExitCode()
	root := a.newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		a.unknown(err)
	}
	return a.exitCode
}

func (a *app) newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "check_rds",
		Short: "Nagios/Icinga check for free connections, free storage and CPU of an RDS instance",
		Long:  "check_rds samples RDS metrics from CloudWatch or Prometheus and\nreports one OK/WARNING/CRITICAL/UNKNOWN line.\n\n" + epilog,
		Args:  cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), cfg)
		},
	}
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)
	config.BindFlags(rootCmd.Flags())
	rootCmd.AddCommand(a.newVersionCmd())
	return rootCmd
}

func (a *app) run(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, flush, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Stderr: a.stderr})
	if err != nil {
		return err
	}
	defer flush()
	logger = logger.With(zap.String("instance", cfg.Instance), zap.String("source", cfg.Source))

	// threshold errors are reported before any source is built
	opts := cfg.CheckOptions()
	if _, err := check.CompileThresholds(opts.Thresholds); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	awsCfg, err := a.loadAWS(ctx, cfg.Region)
	if err != nil {
		return fmt.Errorf("aws config: %w", err)
	}
	src, err := a.newSource(cfg, awsCfg, logger)
	if err != nil {
		return err
	}

	c, err := check.New(opts, src, a.newMetadata(awsCfg, logger), check.WithLogger(logger))
	if err != nil {
		return err
	}

	result, err := c.Run(ctx)
	if err != nil {
		logger.Error("check failed", zap.Error(err))
		return err
	}

	a.exitCode = result.ExitCode()
	if cfg.Output == inspection.OutputJSON {
		return inspection.WriteReport(a.stdout, c.Report(result, a.now()))
	}
	_, err = fmt.Fprintln(a.stdout, result.Summary)
	return err
}

// unknown prints the single UNKNOWN line for a check that could not run.
func (a *app) unknown(err error) {
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "check timed out: " + msg
	}
	fmt.Fprintf(a.stdout, "%s - %s\n", inspection.StateUnknown, msg)
	a.exitCode = inspection.StateUnknown.ExitCode()
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
}

func newSource(cfg config.Config, awsCfg aws.Config, logger *zap.Logger) (sampler.Source, error) {
	if cfg.Source != inspection.SourcePrometheus {
		return cloudwatch.NewFromConfig(awsCfg, logger), nil
	}

	profile, err := loadProfile(cfg.Profile)
	if err != nil {
		return nil, err
	}
	client, err := prom.NewClient(cfg.PrometheusURL, prom.WithTimeout(cfg.Timeout), prom.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("prometheus client: %w", err)
	}
	return prom.NewSource(client, profile,
		prom.WithVars(cfg.Vars),
		prom.WithRegion(cfg.Region),
		prom.WithSourceLogger(logger),
	), nil
}

func loadProfile(path string) (*inspection.Profile, error) {
	if path == "" {
		return inspection.LoadBuiltinProfile(inspection.DefaultProfileName)
	}
	return inspection.ParseProfileFile(path)
}

func newMetadata(awsCfg aws.Config, logger *zap.Logger) check.MetadataProvider {
	return rds.NewFromConfig(awsCfg, logger)
}

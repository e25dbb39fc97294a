package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/chrissnell/gnsschange/internal/constants"
	"github.com/chrissnell/gnsschange/internal/dataset"
	"github.com/chrissnell/gnsschange/internal/detector"
	"github.com/chrissnell/gnsschange/internal/gnss"
	"github.com/chrissnell/gnsschange/internal/log"
	"github.com/chrissnell/gnsschange/internal/report"
	"github.com/chrissnell/gnsschange/internal/simulate"
	"github.com/chrissnell/gnsschange/internal/store"
	"github.com/chrissnell/gnsschange/pkg/config"
)

const version = constants.Version

// Exit codes
const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configFile string
	debug      bool
	logFile    string
	version    bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("gnsschange", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.configFile, "config", "", "Optional YAML configuration file; flags override its values")
	fs.BoolVar(&opts.debug, "debug", false, "Turn on debugging output")
	fs.StringVar(&opts.logFile, "log-file", "", "Also write JSON logs to this file, rotated by size")
	fs.BoolVar(&opts.version, "version", false, "Show version and exit")

	// Values below are applied over the configuration only when set
	var (
		dataPath       = fs.String("data", "", "Path to the coordinate table (.npy, .csv, .db, .sqlite)")
		simulateData   = fs.Bool("simulate", false, "Generate a synthetic series instead of loading one")
		samples        = fs.Int("samples", 2000, "Retained draws per chain")
		tune           = fs.Int("tune", 1000, "Warm-up iterations per chain")
		chains         = fs.Int("chains", 4, "Number of chains")
		alertThreshold = fs.Float64("alert-threshold", detector.DefaultAlertThreshold, "Displacement that raises an axis alert")
		output         = fs.String("output", report.DefaultPrefix, "Output prefix; plots are written to {stem}_{axis}.png")
		minGap         = fs.Int("min-gap", 100, "Minimum separation between the two changepoints")
		meanScale      = fs.Float64("prior-mean-scale", 1, "Standard deviation of the segment mean prior")
		sigmaScale     = fs.Float64("prior-sigma-scale", 1, "Scale of the half-normal noise prior")
		seed           = fs.Uint64("seed", 1, "Sampler seed")
		simSeed        = fs.Uint64("sim-seed", 42, "Generator seed for -simulate")
		parallel       = fs.Bool("parallel", false, "Sample the three axes concurrently")
		storePath      = fs.String("store", "", "SQLite database to record the run in")
		traceDir       = fs.String("trace-dir", "", "Directory for msgpack trace exports")
		pgDSN          = fs.String("pg-dsn", "", "PostgreSQL/TimescaleDB connection string")
		pgTable        = fs.String("pg-table", "", "Table holding the coordinate series")
		pgStation      = fs.String("pg-station", "", "Station whose series is read")
		nPoints        = fs.Int("n-points", 1000, "Series length for -simulate")
		changePoints   = fs.String("change-points", "300,600", "Comma separated change points for -simulate")
	)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitConfig
	}

	if opts.version {
		fmt.Fprintf(stdout, "gnsschange %s\n", version)
		return exitOK
	}

	cfg := config.Default()
	if opts.configFile != "" {
		filename, _ := filepath.Abs(opts.configFile)
		loaded, err := config.NewYAMLProvider(filename).LoadConfig()
		if err != nil {
			fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
			return exitConfig
		}
		cfg = loaded
	}

	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			cfg.Data.Path = *dataPath
		case "simulate":
			cfg.Data.Simulate = *simulateData
		case "samples":
			cfg.Detector.Sampler.Draws = *samples
		case "tune":
			cfg.Detector.Sampler.Tune = *tune
		case "chains":
			cfg.Detector.Sampler.Chains = *chains
		case "alert-threshold":
			cfg.Detector.AlertThreshold = *alertThreshold
		case "output":
			cfg.Output.Prefix = *output
		case "min-gap":
			cfg.Detector.Priors.MinGap = *minGap
		case "prior-mean-scale":
			cfg.Detector.Priors.MeanScale = *meanScale
		case "prior-sigma-scale":
			cfg.Detector.Priors.SigmaScale = *sigmaScale
		case "seed":
			cfg.Detector.Sampler.Seed = *seed
		case "sim-seed":
			cfg.Simulation.Seed = *simSeed
		case "parallel":
			cfg.Detector.Parallel = *parallel
		case "store":
			cfg.Output.Store = *storePath
		case "trace-dir":
			cfg.Output.TraceDir = *traceDir
		case "pg-dsn":
			postgresSource(cfg).DSN = *pgDSN
		case "pg-table":
			postgresSource(cfg).Table = *pgTable
		case "pg-station":
			postgresSource(cfg).Station = *pgStation
		case "n-points":
			cfg.Simulation.NPoints = *nPoints
		case "change-points":
			cps, err := parseInts(*changePoints)
			if err != nil {
				flagErr = gnss.Configf("change-points", "%v", err)
				return
			}
			cfg.Simulation.ChangePoints = cps
		}
	})
	if flagErr != nil {
		fmt.Fprintln(stderr, flagErr)
		return exitConfig
	}

	// Set up logging
	if opts.debug {
		cfg.Logging.Debug = true
	}
	if opts.logFile != "" {
		cfg.Logging.File = opts.logFile
	}
	if err := log.InitWithOptions(log.Options{
		Debug:      cfg.Logging.Debug,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	}); err != nil {
		fmt.Fprintf(stderr, "Failed to initialize logger: %v\n", err)
		return exitFailed
	}
	defer log.Sync()

	if err := detect(ctx, cfg, stdout); err != nil {
		fmt.Fprintln(stderr, err)
		var ce *gnss.ConfigurationError
		if errors.As(err, &ce) {
			fs.Usage()
			return exitConfig
		}
		return exitFailed
	}
	return exitOK
}

// detect loads the data, runs the detector and writes every artifact. Per
// axis failures are reported after the artifacts of the other axes.
func detect(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	src, err := cfg.Source()
	if err != nil {
		return err
	}

	det, err := detector.New(cfg.Detector, log.Named("detector"))
	if err != nil {
		return err
	}

	obs, source, err := loadObservations(ctx, cfg, src)
	if err != nil {
		return err
	}
	log.Infow("loaded observations", "source", source, "n", obs.Len())

	r, err := det.Detect(ctx, obs)
	if err != nil {
		return err
	}

	if err := report.WriteSummary(stdout, r); err != nil {
		return err
	}

	paths, err := report.RenderReport(cfg.Output.Prefix, obs, r)
	if err != nil {
		return fmt.Errorf("failed to render plots: %w", err)
	}
	for _, p := range paths {
		fmt.Fprintf(stdout, "Output saved to %s\n", p)
	}

	if cfg.Output.TraceDir != "" {
		stem := filepath.Base(report.Stem(cfg.Output.Prefix))
		traces, err := store.ExportTraces(cfg.Output.TraceDir, stem, r)
		if err != nil {
			return err
		}
		for _, p := range traces {
			fmt.Fprintf(stdout, "Trace saved to %s\n", p)
		}
	}

	if cfg.Output.Store != "" {
		runs, err := store.Open(ctx, cfg.Output.Store, log.Named("store"))
		if err != nil {
			return err
		}
		defer runs.Close()
		id, err := runs.SaveRun(ctx, source, r)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Run recorded as %s in %s\n", id, cfg.Output.Store)
	}

	return r.Err()
}

func loadObservations(ctx context.Context, cfg *config.Config, src config.Source) (*gnss.Observations, string, error) {
	switch src {
	case config.SourceFile:
		obs, err := dataset.Load(ctx, cfg.Data.Path)
		return obs, cfg.Data.Path, err
	case config.SourceSimulate:
		obs, err := simulate.Generate(cfg.Simulation)
		source := fmt.Sprintf("simulate(n=%d, change_points=%v, seed=%d)",
			cfg.Simulation.NPoints, cfg.Simulation.ChangePoints, cfg.Simulation.Seed)
		return obs, source, err
	case config.SourcePostgres:
		pg := *cfg.Data.Postgres
		obs, err := dataset.LoadPostgres(ctx, pg)
		return obs, pg.Table + "/" + pg.Station, err
	}
	return nil, "", gnss.Configf("data", "no data source")
}

// postgresSource returns the configured Postgres source, creating an empty
// one so a single -pg-* flag keeps the other fields from the config file
func postgresSource(cfg *config.Config) *dataset.PostgresSource {
	if cfg.Data.Postgres == nil {
		cfg.Data.Postgres = &dataset.PostgresSource{}
	}
	return cfg.Data.Postgres
}

func parseInts(s string) ([]int, error) {
	out := []int{}
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chrissnell/gnsschange/internal/dataset"
	"github.com/chrissnell/gnsschange/internal/log"
)

func main() {
	var (
		src  dataset.PostgresSource
		opts dataset.ImportOptions
	)

	file := flag.String("file", "", "Dataset to import (.npy, .csv, .db, .sqlite) (required)")
	flag.StringVar(&src.DSN, "dsn", "", "PostgreSQL/TimescaleDB connection string (required)")
	flag.StringVar(&src.Table, "table", "gnss_positions", "Destination table, optionally schema qualified")
	flag.StringVar(&src.Station, "station", "", "Station name stored with every row (required)")
	flag.StringVar(&src.StationColumn, "station-column", "", "Station column name (default station)")
	flag.StringVar(&src.TimeColumn, "time-column", "", "Time column name (default time)")
	start := flag.String("start", "2000-01-01T00:00:00Z", "RFC 3339 timestamp of the first epoch")
	flag.DurationVar(&opts.Interval, "interval", 24*time.Hour, "Spacing between epochs")
	flag.BoolVar(&opts.Create, "create", false, "Create the table if it does not exist")
	flag.BoolVar(&opts.Hypertable, "hypertable", false, "Make the created table a TimescaleDB hypertable")
	flag.BoolVar(&opts.Replace, "replace", false, "Delete the station's existing rows first")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *file == "" || src.DSN == "" || src.Station == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -file <series.npy> -dsn <dsn> -station <name> [flags]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	var err error
	opts.Start, err = time.Parse(time.RFC3339, *start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid -start: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := dataset.Load(ctx, *file)
	if err != nil {
		log.Errorf("Failed to load %s: %v", *file, err)
		log.Sync()
		os.Exit(1)
	}
	log.Infow("loaded dataset", "file", *file, "epochs", obs.Len())

	begin := time.Now()
	n, err := dataset.ImportPostgres(ctx, src, obs, opts)
	if err != nil {
		log.Errorf("Import failed: %v", err)
		log.Sync()
		os.Exit(1)
	}

	log.Infow("import completed", "table", src.Table, "station", src.Station, "rows", n, "elapsed", time.Since(begin))
}

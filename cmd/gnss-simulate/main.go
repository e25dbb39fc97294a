package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chrissnell/gnsschange/internal/dataset"
	"github.com/chrissnell/gnsschange/internal/gnss"
	"github.com/chrissnell/gnsschange/internal/simulate"
)

const defaultOutput = "gnss_data.npy"

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("gnss-simulate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		output       = fs.String("output", defaultOutput, "Where to write the series (.npy, .csv, .db, .sqlite)")
		nPoints      = fs.Int("n-points", 1000, "Number of epochs")
		changePoints = fs.String("change-points", "300,600", "Comma separated change points")
		seed         = fs.Uint64("seed", 42, "Generator seed")
		advanced     = fs.Bool("advanced", false, "Widen the noise of each later segment")
		inspect      = fs.String("inspect", "", "Print the shape and first rows of an existing dataset instead")
		rows         = fs.Int("rows", 5, "Rows printed by -inspect")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *inspect != "" {
		obs, err := dataset.Load(ctx, *inspect)
		if err != nil {
			fmt.Fprintf(stderr, "Error loading %s: %v\n", *inspect, err)
			return 1
		}
		dataset.Inspect(stdout, obs, *rows)
		return 0
	}

	p := simulate.DefaultParams()
	if *advanced {
		p = simulate.AdvancedParams()
	}
	p.NPoints = *nPoints
	p.Seed = *seed

	cps, err := parseInts(*changePoints)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid -change-points: %v\n", err)
		return 2
	}
	p.ChangePoints = cps
	if *advanced && len(cps) != 2 {
		// the advanced scenario describes exactly three segments
		p.Means, p.Sigmas = nil, nil
	}

	obs, err := simulate.Generate(p)
	if err != nil {
		fmt.Fprintf(stderr, "Error generating data: %v\n", err)
		var ce *gnss.ConfigurationError
		if errors.As(err, &ce) {
			return 2
		}
		return 1
	}

	if err := dataset.Save(ctx, *output, obs); err != nil {
		fmt.Fprintf(stderr, "Error writing %s: %v\n", *output, err)
		return 1
	}

	fmt.Fprintf(stdout, "Generated %d epochs with change points %v\n", obs.Len(), p.ChangePoints)
	fmt.Fprintf(stdout, "Data saved to %s\n", *output)
	return 0
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

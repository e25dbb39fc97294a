package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chrissnell/gnsschange/pkg/config"
)

func main() {
	var (
		yamlFile = flag.String("yaml", "", "Path to YAML configuration file")
		dump     = flag.Bool("dump", false, "Print the effective configuration with defaults applied")
	)
	flag.Parse()

	if *yamlFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -yaml <gnsschange.yaml> [-dump]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("Configuration Check")
	fmt.Println("===================")

	fmt.Printf("Loading YAML configuration: %s\n", *yamlFile)
	cfg, err := config.NewYAMLProvider(*yamlFile).LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading YAML config: %v\n", err)
		os.Exit(1)
	}

	failed := false
	if err := cfg.Validate(); err != nil {
		fmt.Printf("✗ Settings: %v\n", err)
		failed = true
	} else {
		fmt.Println("✓ Settings are valid")
	}

	if src, err := cfg.Source(); err != nil {
		// the server does not need a data source
		fmt.Printf("- Data source: %v\n", err)
	} else {
		fmt.Printf("✓ Data source: %s\n", src)
	}

	d := cfg.Detector
	fmt.Printf("Sampler: %d chains x %d draws (%d tune), seed %d\n",
		d.Sampler.Chains, d.Sampler.Draws, d.Sampler.Tune, d.Sampler.Seed)
	fmt.Printf("Priors: mean scale %g, sigma scale %g, min gap %d\n",
		d.Priors.MeanScale, d.Priors.SigmaScale, d.Priors.MinGap)
	fmt.Printf("Alert threshold: %g\n", d.AlertThreshold)
	fmt.Printf("Server: %s:%d (max %d points per request)\n", cfg.Server.ListenAddr, cfg.Server.Port, cfg.Server.MaxPoints)

	if *dump {
		fmt.Println("\nEffective configuration:")
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding config: %v\n", err)
			os.Exit(1)
		}
		enc.Close()
	}

	if failed {
		os.Exit(1)
	}
}

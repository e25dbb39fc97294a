package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chrissnell/gnsschange/internal/app"
	"github.com/chrissnell/gnsschange/internal/constants"
	"github.com/chrissnell/gnsschange/internal/log"
	"github.com/chrissnell/gnsschange/pkg/config"
)

const version = constants.Version

func main() {
	cfgFile := flag.String("config", "", "Path to YAML configuration file; defaults are used when empty")
	port := flag.Int("port", 0, "Listen port; overrides server.port")
	storePath := flag.String("store", "", "SQLite run store; overrides output.store")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gnsschange-server %s\n", version)
		os.Exit(0)
	}

	// Load configuration
	cfgData, err := loadConfig(*cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(2)
	}
	if *port != 0 {
		cfgData.Server.Port = *port
	}
	if *storePath != "" {
		cfgData.Output.Store = *storePath
	}
	if err := cfgData.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	// Set up logging
	if err := log.InitWithOptions(log.Options{
		Debug:      *debug || cfgData.Logging.Debug,
		File:       cfgData.Logging.File,
		MaxSizeMB:  cfgData.Logging.MaxSizeMB,
		MaxBackups: cfgData.Logging.MaxBackups,
		MaxAgeDays: cfgData.Logging.MaxAgeDays,
	}); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Create and run the application
	application := app.New(cfgData, log.GetSugaredLogger())
	if err := application.Run(context.Background()); err != nil {
		log.Errorf("Application error: %v", err)
		log.Sync()
		os.Exit(1)
	}
}

func loadConfig(cfgFile string) (*config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	filename, _ := filepath.Abs(cfgFile)

	var provider config.ConfigProvider = config.NewYAMLProvider(filename)
	defer provider.Close()

	cfgData, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config file. Did you pass the -config flag? Run with -h for help: %w", err)
	}
	return cfgData, nil
}

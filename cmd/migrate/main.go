package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/chrissnell/gnsschange/internal/log"
	"github.com/chrissnell/gnsschange/internal/store"
	"github.com/chrissnell/gnsschange/pkg/migrate"
)

const usage = `Run store migration tool

Usage:
  migrate [flags] status          Show the applied and pending versions
  migrate [flags] up              Apply all pending migrations
  migrate [flags] to <version>    Migrate up or down to a version
  migrate [flags] down <version>  Roll back to a lower version

Flags:
`

func main() {
	dbPath := flag.String("db", "gnsschange.db", "Path to the run store")
	dir := flag.String("dir", "", "Read migrations from this directory instead of the built-in set")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(context.Background(), *dbPath, *dir, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, dbPath, dir string, args []string) error {
	command := "status"
	if len(args) > 0 {
		command = args[0]
	}

	target := -1
	switch command {
	case "to", "down":
		if len(args) != 2 {
			return fmt.Errorf("%s needs a target version", command)
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid target version %q", args[1])
		}
		target = v
	case "status", "up":
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", dbPath, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	migrations := store.Migrations()
	if dir != "" {
		migrations = os.DirFS(dir)
	}
	m := migrate.NewMigrator(db, migrate.NewFSSource(migrations, store.MigrationTable), log.Named("migrate"))

	switch command {
	case "up":
		err = m.Up(ctx)
	case "to":
		err = m.To(ctx, target)
	case "down":
		err = m.Down(ctx, target)
	}
	if err != nil {
		return err
	}

	st, err := m.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Schema version: %d (latest %d)\n", st.Current, st.Latest)
	for _, mg := range st.Pending {
		fmt.Printf("  pending %03d %s\n", mg.Version, mg.Name)
	}
	return nil
}

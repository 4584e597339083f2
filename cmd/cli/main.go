package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	dbembed "github.com/flowweave/flowweave-web/db"
	"github.com/flowweave/flowweave-web/internal/config"
	"github.com/flowweave/flowweave-web/internal/logger"
	"github.com/flowweave/flowweave-web/internal/postgres"
)

const (
	defaultMigrationsDir = "db/migrations"
	usage                = "usage: %s [migrate|status|fresh|purge|dump] [options]"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf(usage, os.Args[0])
	}

	lg, err := logger.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync() //nolint:errcheck

	var run func([]string, *zap.Logger) error
	switch os.Args[1] {
	case "migrate":
		run = runMigrate
	case "status":
		run = runStatus
	case "fresh":
		run = runFresh
	case "purge":
		run = runPurge
	case "dump":
		run = runDump
	default:
		log.Fatalf(usage, os.Args[0])
	}

	cmd := os.Args[1]
	if err := run(os.Args[2:], lg.Named(cmd)); err != nil {
		lg.Fatal(cmd+" failed", zap.Error(err))
	}
}

func runMigrate(args []string, lg *zap.Logger) error {
	flags := flag.NewFlagSet("migrate", flag.ExitOnError)
	migrationsDir := flags.String("path", defaultMigrationsDir, "directory containing .sql migrations (overrides embedded bundle)")
	_ = flags.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	migrations, err := migrationsFS(*migrationsDir)
	if err != nil {
		return err
	}
	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := postgres.Migrate(ctx, pool, migrations)
	logApplied(lg, applied)
	return err
}

func runStatus(args []string, lg *zap.Logger) error {
	flags := flag.NewFlagSet("status", flag.ExitOnError)
	migrationsDir := flags.String("path", defaultMigrationsDir, "directory containing .sql migrations (overrides embedded bundle)")
	_ = flags.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	migrations, err := migrationsFS(*migrationsDir)
	if err != nil {
		return err
	}
	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	pending, err := postgres.Pending(ctx, pool, migrations)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		lg.Info("schema up to date")
		return nil
	}
	lg.Info("pending migrations", zap.Strings("names", pending))
	return nil
}

func runFresh(args []string, lg *zap.Logger) error {
	flags := flag.NewFlagSet("fresh", flag.ExitOnError)
	migrationsDir := flags.String("path", defaultMigrationsDir, "directory containing .sql migrations (overrides embedded bundle)")
	_ = flags.Parse(args)

	if env := strings.TrimSpace(os.Getenv("APP_ENV")); env != "" && env != "development" {
		return fmt.Errorf("APP_ENV must be development (got %q)", env)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	migrations, err := migrationsFS(*migrationsDir)
	if err != nil {
		return err
	}
	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.DropTables(ctx, pool); err != nil {
		return err
	}
	lg.Info("dropped application tables")

	applied, err := postgres.Migrate(ctx, pool, migrations)
	logApplied(lg, applied)
	return err
}

func runPurge(args []string, lg *zap.Logger) error {
	flags := flag.NewFlagSet("purge", flag.ExitOnError)
	_ = flags.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	n, err := postgres.NewSessionStore(pool).DeleteExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	lg.Info("purged expired signup sessions", zap.Int64("count", n))
	return nil
}

func runDump(args []string, lg *zap.Logger) error {
	flags := flag.NewFlagSet("dump", flag.ExitOnError)
	out := flags.String("out", defaultDumpPath(), "output file path")
	schemaOnly := flags.Bool("schema-only", false, "dump schema only")
	binary := flags.String("pg-dump-bin", "pg_dump", "pg_dump binary path")
	_ = flags.Parse(args)

	dbCfg, err := config.LoadDatabase()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return fmt.Errorf("mkdir output dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	argsOut := []string{
		"--dbname", dbCfg.URL,
		"--format=plain",
		"--no-owner",
		"--no-privileges",
		"--table", "signup_sessions",
		"--table", "schema_migrations",
		"--file", *out,
	}
	if *schemaOnly {
		argsOut = append(argsOut, "--schema-only")
	}

	cmd := exec.CommandContext(ctx, *binary, argsOut...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	lg.Info("running pg_dump", zap.String("bin", *binary), zap.String("out", *out))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pg_dump: %w", err)
	}
	lg.Info("dump written", zap.String("out", *out))
	return nil
}

func connect(ctx context.Context) (*pgxpool.Pool, error) {
	dbCfg, err := config.LoadDatabase()
	if err != nil {
		return nil, err
	}
	pool, err := postgres.Connect(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	return pool, nil
}

// migrationsFS prefers an on-disk directory and falls back to the bundle
// compiled into the binary when the default directory is absent.
func migrationsFS(path string) (fs.FS, error) {
	if path == "" {
		return dbembed.Migrations(), nil
	}

	info, err := os.Stat(path)
	switch {
	case err == nil:
		if !info.IsDir() {
			return nil, fmt.Errorf("path %q is not a directory", path)
		}
		return os.DirFS(path), nil
	case errors.Is(err, os.ErrNotExist):
		if path == defaultMigrationsDir {
			return dbembed.Migrations(), nil
		}
		return nil, fmt.Errorf("path %q not found", path)
	default:
		return nil, fmt.Errorf("stat path %q: %w", path, err)
	}
}

func logApplied(lg *zap.Logger, applied []string) {
	if len(applied) == 0 {
		lg.Info("no migrations applied")
		return
	}
	for _, name := range applied {
		lg.Info("applied migration", zap.String("name", name))
	}
}

func defaultDumpPath() string {
	return filepath.Join("tmp", "dump-"+time.Now().Format("20060102-150405")+".sql")
}

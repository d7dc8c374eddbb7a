// Command ocfl is a thin CLI over an OCFL storage root: put, get,
// describe, ls, rm, validate and rollback, all against a filesystem
// backend selected by --root.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"ocfl/internal/inventory"
	"ocfl/internal/layout"
	"ocfl/internal/storage"
	"ocfl/internal/validate"
	"ocfl/pkg/ocfl"
)

func newLogger() *slog.Logger {
	handler := log.NewWithOptions(os.Stderr, log.Options{
		Level:           log.InfoLevel,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
	})
	return slog.New(handler)
}

func openRepository(root, layoutName, workDir string) (*ocfl.Repository, error) {
	l, err := layout.Lookup(layoutName)
	if err != nil {
		return nil, fmt.Errorf("unknown layout %q: %w", layoutName, err)
	}
	if err := l.Init(nil); err != nil {
		return nil, err
	}

	engine, err := storage.NewFilesystem(root, l)
	if err != nil {
		return nil, fmt.Errorf("open storage root %s: %w", root, err)
	}

	if workDir == "" {
		workDir = filepath.Join(root, ".ocfl-work")
	}

	return ocfl.NewRepository(ocfl.NewConfig(
		ocfl.WithEngine(engine),
		ocfl.WithWorkDirectory(workDir),
	))
}

func Run(ctx context.Context, args []string, logger *slog.Logger) error {
	if len(args) < 2 {
		return usageError()
	}

	sub := args[1]
	fs := flag.NewFlagSet(sub, flag.ExitOnError)
	root := fs.String("root", "", "OCFL storage root directory")
	layoutName := fs.String("layout", layout.FlatName, "storage layout extension name")
	workDir := fs.String("work-dir", "", "scratch directory for staging (defaults under --root)")
	if err := fs.Parse(args[2:]); err != nil {
		return err
	}
	rest := fs.Args()

	if *root == "" {
		return errors.New("--root is required")
	}

	repo, err := openRepository(*root, *layoutName, *workDir)
	if err != nil {
		return err
	}
	defer repo.Close()

	switch sub {
	case "put":
		return runPut(ctx, repo, logger, rest)
	case "get":
		return runGet(ctx, repo, logger, rest)
	case "describe":
		return runDescribe(ctx, repo, logger, rest)
	case "ls":
		return runList(ctx, repo, logger)
	case "rm":
		return runRemove(ctx, repo, logger, rest)
	case "validate":
		return runValidate(ctx, repo, logger, rest)
	case "rollback":
		return runRollback(ctx, repo, logger, rest)
	default:
		return usageError()
	}
}

func usageError() error {
	return errors.New("usage: ocfl <put|get|describe|ls|rm|validate|rollback> --root DIR [args]")
}

func runPut(ctx context.Context, repo *ocfl.Repository, logger *slog.Logger, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: ocfl put OBJECT_ID SOURCE_DIR [message]")
	}
	id, sourceDir := args[0], args[1]
	message := "put"
	if len(args) > 2 {
		message = args[2]
	}

	details, err := repo.PutObject(ctx, id, sourceDir, inventory.VersionInfo{Message: message}, ocfl.PutOptions{})
	if err != nil {
		return err
	}
	logger.Info("committed version", "object", id, "version", details.Number.String(), "files", len(details.Files))
	return nil
}

func runGet(ctx context.Context, repo *ocfl.Repository, logger *slog.Logger, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: ocfl get OBJECT_ID OUT_DIR [version]")
	}
	id, outDir := args[0], args[1]
	var version *inventory.VersionNum
	if len(args) > 2 {
		v, err := inventory.ParseVersionNum(args[2])
		if err != nil {
			return err
		}
		version = &v
	}

	if err := repo.GetObject(ctx, id, version, outDir); err != nil {
		return err
	}
	logger.Info("materialized object", "object", id, "dir", outDir)
	return nil
}

func runDescribe(ctx context.Context, repo *ocfl.Repository, logger *slog.Logger, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: ocfl describe OBJECT_ID")
	}
	details, err := repo.DescribeObject(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("id:               %s\n", details.ID)
	fmt.Printf("digestAlgorithm:  %s\n", details.DigestAlgorithm)
	fmt.Printf("contentDirectory: %s\n", details.ContentDirectory)
	fmt.Printf("head:             %s\n", details.Head)
	for _, v := range details.Versions {
		fmt.Printf("  %s  %s  %s  files=%s\n", v.Number, v.Created.Format(time.RFC3339), v.Message, humanize.Comma(int64(len(v.Files))))
	}
	return nil
}

func runList(ctx context.Context, repo *ocfl.Repository, logger *slog.Logger) error {
	iter, err := repo.ListObjectIds(ctx)
	if err != nil {
		return err
	}
	for {
		id, ok, err := iter.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		fmt.Println(id)
	}
	return nil
}

func runRemove(ctx context.Context, repo *ocfl.Repository, logger *slog.Logger, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: ocfl rm OBJECT_ID")
	}
	if err := repo.PurgeObject(ctx, args[0]); err != nil {
		return err
	}
	logger.Warn("purged object", "object", args[0])
	return nil
}

func runValidate(ctx context.Context, repo *ocfl.Repository, logger *slog.Logger, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: ocfl validate OBJECT_ID [--deep]")
	}
	mode := validate.Shallow
	if len(args) > 1 && args[1] == "--deep" {
		mode = validate.Deep
	}

	report, err := repo.ValidateObject(ctx, args[0], mode)
	if err != nil {
		return err
	}
	for _, issue := range report.Issues {
		level := "warning"
		if issue.Fatal {
			level = "fatal"
		}
		fmt.Printf("[%s] %s: %s\n", level, issue.Path, issue.Message)
	}
	if !report.Valid() {
		return fmt.Errorf("object %s failed validation", args[0])
	}
	logger.Info("object is valid", "object", args[0])
	return nil
}

func runRollback(ctx context.Context, repo *ocfl.Repository, logger *slog.Logger, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: ocfl rollback OBJECT_ID VERSION")
	}
	v, err := inventory.ParseVersionNum(args[1])
	if err != nil {
		return err
	}
	if err := repo.RollbackToVersion(ctx, args[0], v); err != nil {
		return err
	}
	logger.Info("rolled back", "object", args[0], "version", v.String())
	return nil
}

func main() {
	logger := newLogger()
	if err := Run(context.Background(), os.Args, logger); err != nil {
		logger.Error("ocfl failed", "error", err)
		os.Exit(1)
	}
}

package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/cplog-cli/internal/cplog"
)

// ErrNoFilesParsed is returned when no input file yields records.
var ErrNoFilesParsed = errors.New("no files parsed")

// LoadOptions control Load.
type LoadOptions struct {
	Targets  []string
	Encoding string
	MaxBytes int64
	// Workers bounds concurrent parsing. Zero means GOMAXPROCS.
	Workers int
	// Root, when set, names records by their path relative to it.
	Root   string
	Logger *slog.Logger
	// Progress, if non-nil, is called once per file as it finishes.
	// Calls may come from several goroutines.
	Progress func(path string, err error)
}

// Skipped is a file that could not be used.
type Skipped struct {
	File string
	Err  error
}

// Batch is the outcome of loading a set of files.
type Batch struct {
	ID        uuid.UUID
	Dataset   *Dataset
	Parsed    []string
	Skipped   []Skipped
	Conflicts []*ConflictError
	RowErrors int
}

// Load parses paths concurrently and merges them in input order, so the
// merged dataset depends only on the order of paths. A file that fails to
// parse is recorded in Skipped; only a batch where every file fails is an
// error.
func Load(ctx context.Context, paths []string, opt LoadOptions) (*Batch, error) {
	log := opt.Logger
	if log == nil {
		log = slog.Default()
	}
	workers := opt.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]*cplog.Result, len(paths))
	errs := make([]error, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := cplog.ParseFile(p, cplog.Options{
				Name:     displayName(opt.Root, p),
				Targets:  opt.Targets,
				Encoding: opt.Encoding,
				MaxBytes: opt.MaxBytes,
			})
			results[i], errs[i] = res, err
			if opt.Progress != nil {
				opt.Progress(p, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load logs: %w", err)
	}

	b := &Batch{ID: uuid.New()}
	for i, p := range paths {
		if errs[i] != nil {
			log.Warn("skipping log", "file", p, "err", errs[i])
			b.Skipped = append(b.Skipped, Skipped{File: p, Err: errs[i]})
			results[i] = nil
			continue
		}
		b.Parsed = append(b.Parsed, p)
		if n := len(results[i].RowErrors); n > 0 {
			log.Warn("short data rows skipped", "file", p, "rows", n)
			b.RowErrors += n
		}
	}
	if len(b.Parsed) == 0 {
		return b, fmt.Errorf("%w: %d of %d files skipped", ErrNoFilesParsed, len(b.Skipped), len(paths))
	}
	b.Dataset, b.Conflicts = Merge(results)
	for _, c := range b.Conflicts {
		log.Warn("limit conflict", "parameter", c.Parameter, "bound", c.Bound,
			"kept", c.KeptText(), "kept_file", c.KeptFile, "rejected", c.Rejected, "file", c.File)
	}
	log.Debug("batch loaded", "id", b.ID, "parsed", len(b.Parsed), "skipped", len(b.Skipped), "records", b.Dataset.Len())
	return b, nil
}

func displayName(root, path string) string {
	if root != "" {
		if rel, err := filepath.Rel(root, path); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(path)
}

// Package jobs runs the background bank statement inbox: a directory that
// the bank's SFTP drop or an operator fills with CSV statements.
package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"coopledger/internal/logger"
	"coopledger/internal/services"
)

// InboxActor is recorded as the importer of statements picked up from the inbox.
const InboxActor = "inbox:bank-statements"

const (
	processedDir = "processed"
	failedDir    = "failed"
)

// ScanSummary reports one pass over the inbox.
type ScanSummary struct {
	Files    int
	Imported int
	Failed   int
}

// InboxImporter imports every settled *.csv file in a directory and moves it
// to processed/ or failed/ afterwards.
type InboxImporter struct {
	dir     string
	coopID  string
	imports services.BankImportServicer
	workers int
	settle  time.Duration
	now     func() time.Time
	log     *zap.SugaredLogger

	// one scan at a time; cron and the watcher may both fire
	mu sync.Mutex
}

// InboxOption configures an InboxImporter.
type InboxOption func(*InboxImporter)

// WithSettle skips files modified within d, so half-written uploads are left
// for the next scan.
func WithSettle(d time.Duration) InboxOption {
	return func(i *InboxImporter) { i.settle = d }
}

// WithWorkers bounds how many statements are imported concurrently.
func WithWorkers(n int) InboxOption {
	return func(i *InboxImporter) {
		if n > 0 {
			i.workers = n
		}
	}
}

// NewInboxImporter creates the importer and its processed/ and failed/ folders.
func NewInboxImporter(dir, coopID string, imports services.BankImportServicer, opts ...InboxOption) (*InboxImporter, error) {
	if dir == "" || coopID == "" {
		return nil, fmt.Errorf("inbox directory and coop id are required")
	}
	i := &InboxImporter{
		dir:     dir,
		coopID:  coopID,
		imports: imports,
		workers: 2,
		settle:  2 * time.Second,
		now:     time.Now,
		log:     logger.Named("inbox"),
	}
	for _, opt := range opts {
		opt(i)
	}
	for _, sub := range []string{processedDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s folder: %w", sub, err)
		}
	}
	return i, nil
}

// Dir returns the watched directory.
func (i *InboxImporter) Dir() string { return i.dir }

// Settle returns how long a file must stay unmodified before it is imported.
func (i *InboxImporter) Settle() time.Duration { return i.settle }

// ScanOnce imports the statements currently in the inbox. A failing statement
// is moved to failed/ and does not stop the others.
func (i *InboxImporter) ScanOnce(ctx context.Context) (ScanSummary, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	files, err := i.pending()
	if err != nil {
		return ScanSummary{}, err
	}
	if len(files) == 0 {
		return ScanSummary{}, nil
	}

	var (
		summary = ScanSummary{Files: len(files)}
		smu     sync.Mutex
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.workers)
	for _, name := range files {
		name := name
		g.Go(func() error {
			ok := i.importFile(gctx, name)
			smu.Lock()
			if ok {
				summary.Imported++
			} else {
				summary.Failed++
			}
			smu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	i.log.Infow("inbox scan finished", "files", summary.Files, "imported", summary.Imported, "failed", summary.Failed)
	return summary, ctx.Err()
}

// pending lists settled statement files, oldest name first.
func (i *InboxImporter) pending() ([]string, error) {
	entries, err := os.ReadDir(i.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read inbox: %w", err)
	}
	cutoff := i.now().Add(-i.settle)
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isStatement(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if i.settle > 0 && info.ModTime().After(cutoff) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

func (i *InboxImporter) importFile(ctx context.Context, name string) bool {
	path := filepath.Join(i.dir, name)
	f, err := os.Open(path)
	if err != nil {
		i.log.Errorw("failed to open statement", "file", name, "error", err)
		return false
	}

	res, err := i.imports.Import(ctx, services.ImportInput{
		CoopID:     i.coopID,
		Filename:   name,
		Reader:     f,
		ImportedBy: InboxActor,
	})
	f.Close()

	if err != nil {
		i.log.Errorw("statement import failed", "file", name, "error", err)
		i.move(name, failedDir)
		return false
	}

	i.log.Infow("statement imported",
		"file", name,
		"import_id", res.Import.ID,
		"rows", res.Import.RowCount,
		"matched", res.Import.MatchedCount,
		"skipped", res.Import.SkippedCount,
	)
	i.move(name, processedDir)
	return true
}

func (i *InboxImporter) move(name, sub string) {
	target := filepath.Join(i.dir, sub, name)
	if _, err := os.Stat(target); err == nil {
		target = filepath.Join(i.dir, sub, i.now().Format("20060102T150405")+"-"+name)
	}
	if err := os.Rename(filepath.Join(i.dir, name), target); err != nil {
		i.log.Errorw("failed to move statement", "file", name, "to", sub, "error", err)
	}
}

func isStatement(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv") && !strings.HasPrefix(name, ".")
}

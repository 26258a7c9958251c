package jobs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"coopledger/internal/logger"
	"coopledger/internal/models"
	"coopledger/internal/pagination"
	"coopledger/internal/services"
)

func init() {
	logger.Init("test")
}

const feedCoop = "0190f7a4-6a51-7c1e-9a8e-5d2f3c4b1a00"

type fakeImports struct {
	mu       sync.Mutex
	imported []string
	bodies   map[string]string
	fail     map[string]bool
}

func (f *fakeImports) Import(_ context.Context, in services.ImportInput) (*services.ImportResult, error) {
	body, err := io.ReadAll(in.Reader)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if in.CoopID != feedCoop || in.ImportedBy != InboxActor {
		return nil, errors.New("unexpected scope")
	}
	if f.fail[in.Filename] {
		return nil, errors.New("boom")
	}
	f.imported = append(f.imported, in.Filename)
	if f.bodies == nil {
		f.bodies = map[string]string{}
	}
	f.bodies[in.Filename] = string(body)
	return &services.ImportResult{Import: &models.BankImport{Filename: in.Filename}}, nil
}

func (f *fakeImports) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.imported...)
	sort.Strings(out)
	return out
}

func (f *fakeImports) ManualMatch(context.Context, string, string, string, string) (*models.BankTransaction, error) {
	return nil, errors.New("not used")
}

func (f *fakeImports) GetImport(context.Context, string, string) (*models.BankImport, error) {
	return nil, errors.New("not used")
}

func (f *fakeImports) ListImports(context.Context, string, pagination.PageRequest) (*pagination.PageResponse[models.BankImport], error) {
	return nil, errors.New("not used")
}

func (f *fakeImports) ListBankTransactions(context.Context, string, string, models.MatchStatus, pagination.PageRequest) (*pagination.PageResponse[models.BankTransaction], error) {
	return nil, errors.New("not used")
}

var _ services.BankImportServicer = (*fakeImports)(nil)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestNewInboxImporter(t *testing.T) {
	t.Run("creates folders", func(t *testing.T) {
		dir := t.TempDir()
		if _, err := NewInboxImporter(dir, feedCoop, &fakeImports{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, sub := range []string{processedDir, failedDir} {
			if !exists(filepath.Join(dir, sub)) {
				t.Errorf("expected %s folder", sub)
			}
		}
	})

	t.Run("requires coop", func(t *testing.T) {
		if _, err := NewInboxImporter(t.TempDir(), "", &fakeImports{}); err == nil {
			t.Fatal("expected error without coop id")
		}
	})
}

func TestScanOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("imports statements and moves them", func(t *testing.T) {
		dir := t.TempDir()
		fake := &fakeImports{fail: map[string]bool{"bad.csv": true}}
		imp, err := NewInboxImporter(dir, feedCoop, fake, WithSettle(0), WithWorkers(3))
		if err != nil {
			t.Fatal(err)
		}

		writeFile(t, dir, "a.csv", "Datum;Bedrag;Tegenpartij;Mededeling\n")
		writeFile(t, dir, "b.CSV", "Datum;Bedrag;Tegenpartij;Mededeling\n")
		writeFile(t, dir, "bad.csv", "junk")
		writeFile(t, dir, "notes.txt", "ignore me")
		writeFile(t, dir, ".hidden.csv", "ignore me")

		summary, err := imp.ScanOnce(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary != (ScanSummary{Files: 3, Imported: 2, Failed: 1}) {
			t.Errorf("unexpected summary %+v", summary)
		}
		if got := fake.names(); len(got) != 2 || got[0] != "a.csv" || got[1] != "b.CSV" {
			t.Errorf("unexpected imports %v", got)
		}
		if fake.bodies["a.csv"] != "Datum;Bedrag;Tegenpartij;Mededeling\n" {
			t.Errorf("statement body not forwarded")
		}
		for _, p := range []string{"processed/a.csv", "processed/b.CSV", "failed/bad.csv", "notes.txt", ".hidden.csv"} {
			if !exists(filepath.Join(dir, p)) {
				t.Errorf("expected %s", p)
			}
		}
		if exists(filepath.Join(dir, "a.csv")) {
			t.Error("a.csv should have left the inbox")
		}
	})

	t.Run("second scan finds nothing", func(t *testing.T) {
		dir := t.TempDir()
		fake := &fakeImports{}
		imp, _ := NewInboxImporter(dir, feedCoop, fake, WithSettle(0))
		writeFile(t, dir, "a.csv", "x")

		if _, err := imp.ScanOnce(ctx); err != nil {
			t.Fatal(err)
		}
		summary, err := imp.ScanOnce(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if summary.Files != 0 || len(fake.names()) != 1 {
			t.Errorf("expected no re-import, got %+v %v", summary, fake.names())
		}
	})

	t.Run("name clash in processed keeps both", func(t *testing.T) {
		dir := t.TempDir()
		imp, _ := NewInboxImporter(dir, feedCoop, &fakeImports{}, WithSettle(0))
		imp.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }
		writeFile(t, dir, "processed/a.csv", "old")
		writeFile(t, dir, "a.csv", "new")

		if _, err := imp.ScanOnce(ctx); err != nil {
			t.Fatal(err)
		}
		if !exists(filepath.Join(dir, "processed", "20240301T093000-a.csv")) {
			t.Error("expected timestamped copy in processed/")
		}
	})

	t.Run("fresh files wait for the settle window", func(t *testing.T) {
		dir := t.TempDir()
		fake := &fakeImports{}
		imp, _ := NewInboxImporter(dir, feedCoop, fake, WithSettle(time.Hour))
		writeFile(t, dir, "a.csv", "x")

		summary, err := imp.ScanOnce(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if summary.Files != 0 || !exists(filepath.Join(dir, "a.csv")) {
			t.Errorf("fresh file should stay in the inbox, got %+v", summary)
		}
	})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeImports{}
	imp, err := NewInboxImporter(dir, feedCoop, fake, WithSettle(100*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, imp) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "dropped.csv", "Datum;Bedrag;Tegenpartij;Mededeling\n")

	waitFor(t, 5*time.Second, func() bool { return exists(filepath.Join(dir, "processed", "dropped.csv")) })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestScheduler(t *testing.T) {
	t.Run("rejects bad spec", func(t *testing.T) {
		imp, _ := NewInboxImporter(t.TempDir(), feedCoop, &fakeImports{})
		if _, err := NewScheduler("every now and then", imp); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("runs scans", func(t *testing.T) {
		dir := t.TempDir()
		fake := &fakeImports{}
		imp, _ := NewInboxImporter(dir, feedCoop, fake, WithSettle(0))
		writeFile(t, dir, "a.csv", "x")

		s, err := NewScheduler("@every 1s", imp)
		if err != nil {
			t.Fatal(err)
		}
		s.Start()
		defer s.Stop(context.Background())

		waitFor(t, 5*time.Second, func() bool { return len(fake.names()) == 1 })
	})
}

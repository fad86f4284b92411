package queue_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"lipidquant/internal/queue"
)

func openStore(t *testing.T) *queue.Store {
	t.Helper()
	store, err := queue.OpenPath(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestInsertAndGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	job := &queue.Job{
		Position:       0,
		SourcePath:     "/data/sample01.raw",
		DefinitionPath: "/data/lipids.yaml",
		Status:         queue.StatusNeedsVendorConversion,
	}
	if err := store.Insert(ctx, job); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if job.ID == 0 {
		t.Fatal("expected job ID to be assigned")
	}
	if job.Pass != 1 {
		t.Fatalf("expected default pass 1, got %d", job.Pass)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.SourcePath != job.SourcePath || fetched.DefinitionPath != job.DefinitionPath {
		t.Fatalf("unexpected fetched job: %#v", fetched)
	}
	if fetched.CreatedAt.IsZero() {
		t.Fatal("expected created_at to round-trip")
	}

	missing, err := store.GetByID(ctx, 9999)
	if err != nil {
		t.Fatalf("GetByID missing failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing job, got %#v", missing)
	}
}

func TestInsertRejectsUnknownStatus(t *testing.T) {
	store := openStore(t)
	if err := store.Insert(context.Background(), &queue.Job{SourcePath: "a", DefinitionPath: "b", Status: "bogus"}); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestUpdatePersistsProgressAndArtifacts(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	job := &queue.Job{SourcePath: "/data/a.mzML", DefinitionPath: "/data/l.yaml", Status: queue.StatusNeedsChromConversion}
	if err := store.Insert(ctx, job); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	job.Status = queue.StatusNeedsQuantification
	job.ChromPath = "/work/a.chrom"
	job.ProgressPercent = 66.7
	job.ProgressStage = "Quantifying"
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	job.SetFailed("analyzer crashed")
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != queue.StatusError {
		t.Fatalf("expected error status, got %s", fetched.Status)
	}
	if fetched.ErrorMessage != "analyzer crashed" {
		t.Fatalf("unexpected error message %q", fetched.ErrorMessage)
	}
	if fetched.ChromPath != "/work/a.chrom" {
		t.Fatalf("expected chrom path to persist, got %q", fetched.ChromPath)
	}
}

func TestReplaceSwapsTable(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for i, path := range []string{"/data/a.raw", "/data/b.raw"} {
		if err := store.Insert(ctx, &queue.Job{Position: i, SourcePath: path, DefinitionPath: "/d.yaml", Status: queue.StatusDone}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	derived := []*queue.Job{
		{Pass: 2, Position: 0, SourcePath: "/work/a_positive.mzML", DefinitionPath: "/d.yaml", Derived: true, Status: queue.StatusNeedsChromConversion},
		{Pass: 2, Position: 1, SourcePath: "/work/a_negative.mzML", DefinitionPath: "/d.yaml", Derived: true, Status: queue.StatusNeedsChromConversion},
	}
	if err := store.Replace(ctx, derived); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	jobs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs after replace, got %d", len(jobs))
	}
	for i, job := range jobs {
		if !job.Derived || job.Pass != 2 {
			t.Fatalf("job %d not derived second pass: %#v", i, job)
		}
		if job.SourcePath != derived[i].SourcePath {
			t.Fatalf("unexpected order: got %q want %q", job.SourcePath, derived[i].SourcePath)
		}
		if derived[i].ID != job.ID {
			t.Fatalf("expected replacement IDs to be assigned back to jobs")
		}
	}
}

func TestListFilterStatsAndClear(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	statuses := []queue.Status{queue.StatusDone, queue.StatusError, queue.StatusDone, queue.StatusNeedsQuantification}
	for i, status := range statuses {
		if err := store.Insert(ctx, &queue.Job{Position: i, SourcePath: "/s", DefinitionPath: "/d", Status: status}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	done, err := store.List(ctx, queue.StatusDone)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(done) != 2 {
		t.Fatalf("expected 2 done jobs, got %d", len(done))
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[queue.StatusDone] != 2 || stats[queue.StatusError] != 1 || stats[queue.StatusNeedsQuantification] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}

	removed, err := store.Clear(ctx, queue.StatusDone, queue.StatusError)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	remaining, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected 1 remaining job, got %d", len(remaining))
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	store, err := queue.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	if err := store.Insert(context.Background(), &queue.Job{SourcePath: "/s", DefinitionPath: "/d", Status: queue.StatusDone}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	_ = store.Close()

	reopened, err := queue.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	jobs, err := reopened.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected persisted job, got %d", len(jobs))
	}
}

func TestOpenRebuildsStaleSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	for _, stmt := range []string{
		"CREATE TABLE schema_version (version INTEGER NOT NULL)",
		"INSERT INTO schema_version (version) VALUES (0)",
		"CREATE TABLE jobs (id INTEGER PRIMARY KEY, disc_title TEXT)",
		"INSERT INTO jobs (disc_title) VALUES ('leftover')",
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed %q: %v", stmt, err)
		}
	}
	_ = db.Close()

	store, err := queue.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	defer store.Close()
	jobs, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected rebuilt empty table, got %d jobs", len(jobs))
	}
	if err := store.Insert(context.Background(), &queue.Job{SourcePath: "/s", DefinitionPath: "/d", Status: queue.StatusNeedsQuantification}); err != nil {
		t.Fatalf("Insert after rebuild failed: %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := queue.ParseStatus(" DONE "); !ok || status != queue.StatusDone {
		t.Fatalf("expected done, got %q %v", status, ok)
	}
	if _, ok := queue.ParseStatus("ripping"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
}

package testsupport

import (
	"context"
	"testing"

	"lipidquant/internal/config"
	"lipidquant/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob inserts a pending job for source paired with definition.
func NewJob(t testing.TB, store *queue.Store, source, definition string, status queue.Status) *queue.Job {
	t.Helper()

	job := &queue.Job{SourcePath: source, DefinitionPath: definition, Status: status}
	if err := store.Insert(context.Background(), job); err != nil {
		t.Fatalf("store.Insert: %v", err)
	}
	return job
}

package stage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTaskReportsResultAfterFinish(t *testing.T) {
	release := make(chan struct{})
	task := Go(context.Background(), func(context.Context) (int, error) {
		<-release
		return 42, nil
	})
	if task.Finished() {
		t.Fatal("task should still be running")
	}
	close(release)
	<-task.Done()
	if !task.Finished() {
		t.Fatal("task should be finished")
	}
	got, err := task.Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestTaskCancelPropagates(t *testing.T) {
	task := Go(context.Background(), func(ctx context.Context) (struct{}, error) {
		<-ctx.Done()
		return struct{}{}, ctx.Err()
	})
	task.Cancel()
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("task did not observe cancellation")
	}
	if _, err := task.Result(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTaskRecoversPanic(t *testing.T) {
	task := Go(context.Background(), func(context.Context) (string, error) {
		panic("boom")
	})
	if _, err := task.Result(); err == nil {
		t.Fatal("expected panic to surface as error")
	}
}

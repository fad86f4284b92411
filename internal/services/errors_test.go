package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"lipidquant/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "vendor-conversion", "msconvert", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"vendor-conversion", "msconvert", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", services.Wrap(services.ErrTimeout, "convert", "run", "deadline", nil), true},
		{"transient wrapped twice", fmt.Errorf("outer: %w", services.Wrap(services.ErrTransient, "", "", "", nil)), true},
		{"tool", services.Wrap(services.ErrExternalTool, "convert", "run", "exit 1", nil), false},
		{"configuration", services.Wrap(services.ErrConfiguration, "convert", "lookup", "missing", nil), false},
	}
	for _, tc := range cases {
		if got := services.IsRetryable(tc.err); got != tc.want {
			t.Fatalf("%s: IsRetryable=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestKindLabels(t *testing.T) {
	if got := services.Kind(services.Wrap(services.ErrScheduling, "quant", "search", "", nil)); got != "scheduling" {
		t.Fatalf("unexpected kind %q", got)
	}
	if got := services.Kind(errors.New("plain")); got != "unknown" {
		t.Fatalf("unexpected kind %q", got)
	}
	if got := services.Kind(nil); got != "" {
		t.Fatalf("unexpected kind for nil %q", got)
	}
}

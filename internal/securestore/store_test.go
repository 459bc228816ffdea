package securestore

import (
	"context"
	"errors"
	"testing"

	"github.com/medvault/medvault/internal/errs"
)

func TestMemory_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := s.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := s.Get(ctx, "k")
	if err != nil || v != "v1" {
		t.Fatalf("Get: %q %v", v, err)
	}
	if err := s.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if v, _ := s.Get(ctx, "k"); v != "v2" {
		t.Fatalf("overwrite lost: %q", v)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound after delete, got %v", err)
	}
	// deleting again is a no-op
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestFile_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	// keys may contain separators and dots; they must map to safe file names
	key := "vault.records/account:1"
	if err := s.Set(ctx, key, "blob"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := s.Get(ctx, key)
	if err != nil || v != "blob" {
		t.Fatalf("Get: %q %v", v, err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestFile_SurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	s1, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if err := s1.Set(ctx, "k", "persisted"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	s2, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile reopen: %v", err)
	}
	v, err := s2.Get(ctx, "k")
	if err != nil || v != "persisted" {
		t.Fatalf("reopen Get: %q %v", v, err)
	}
}

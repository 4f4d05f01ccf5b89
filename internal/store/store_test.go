package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStore_PutGetDeps_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	key := "abcd1234"
	want := []byte(`{"kind":"seq"}`)
	if err := s.PutDeps(key, want); err != nil {
		t.Fatalf("PutDeps: %v", err)
	}
	got, err := s.GetDeps(key)
	if err != nil {
		t.Fatalf("GetDeps: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("GetDeps = %q, want %q", got, want)
	}
}

func TestStore_GetDeps_MissReturnsErrNotFound(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.GetDeps("deadbeef"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetDeps on miss: got %v, want ErrNotFound", err)
	}
}

func TestStore_PutResult_ShardsByKeyPrefix(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	key := "ab112233"
	if err := s.PutResult(key, []byte("x")); err != nil {
		t.Fatalf("PutResult: %v", err)
	}
	if !s.HasResult(key) {
		t.Fatalf("HasResult(%s) = false after PutResult", key)
	}
	wantPath := filepath.Join(dir, resultsDir, "ab", "112233")
	if _, statErr := os.Stat(wantPath); statErr != nil {
		t.Fatalf("expected sharded file at %s: %v", wantPath, statErr)
	}
}

func TestStore_WalkDeps_VisitsEveryKey(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	keys := []string{"aaaa0001", "bbbb0002", "cccc0003"}
	for _, k := range keys {
		if err := s.PutDeps(k, []byte("v")); err != nil {
			t.Fatalf("PutDeps(%s): %v", k, err)
		}
	}
	seen := map[string]bool{}
	if err := s.WalkDeps(func(key string) error {
		seen[key] = true
		return nil
	}); err != nil {
		t.Fatalf("WalkDeps: %v", err)
	}
	for _, k := range keys {
		if !seen[k] {
			t.Errorf("WalkDeps did not visit %s", k)
		}
	}
}

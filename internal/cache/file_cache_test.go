package cache

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type cachedValue struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestFileCache_SetAndGet(t *testing.T) {
	c, err := NewFileCacheWithDir(t.TempDir())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := cachedValue{Name: "deploys", Count: 3}
	if err := c.Set("key", want, time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got cachedValue
	if err := c.Get("key", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestFileCache_Miss(t *testing.T) {
	c, err := NewFileCacheWithDir(t.TempDir())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var got cachedValue
	if err := c.Get("missing", &got); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestFileCache_ExpiredEntryIsRemoved(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCacheWithDir(dir)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if err := c.Set("key", cachedValue{Name: "old"}, time.Nanosecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	var got cachedValue
	if err := c.Get("key", &got); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss for expired entry, got %v", err)
	}
	if _, err := os.Stat(c.path("key")); !os.IsNotExist(err) {
		t.Errorf("Expected expired entry to be deleted, stat returned %v", err)
	}
}

func TestFileCache_SetLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCacheWithDir(dir)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := c.Set("key", cachedValue{Count: i}, 0); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if strings.HasSuffix(path, ".tmp") {
			t.Errorf("Unexpected temp file left behind: %s", path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	var got cachedValue
	if err := c.Get("key", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Count != 2 {
		t.Errorf("Expected last write to win, got count %d", got.Count)
	}
}

func TestFileCache_Delete(t *testing.T) {
	c, err := NewFileCacheWithDir(t.TempDir())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if err := c.Delete("never-set"); err != nil {
		t.Errorf("Expected deleting a missing key to succeed, got %v", err)
	}

	if err := c.Set("key", cachedValue{Name: "x"}, 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Delete("key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var got cachedValue
	if err := c.Get("key", &got); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after delete, got %v", err)
	}
}

func TestCacheKeyBuilder_MetricKeyIgnoresMapOrder(t *testing.T) {
	kb := NewCacheKeyBuilder("metrics")

	a := map[string]string{"p1": "deploy", "p2": "release"}
	b := map[string]string{"p2": "release", "p1": "deploy"}

	if kb.MetricKey("proj", "deployment_frequency", 1, 2, 3, a, "f0") != kb.MetricKey("proj", "deployment_frequency", 1, 2, 3, b, "f0") {
		t.Errorf("Expected equal keys for equal role maps")
	}

	c := map[string]string{"p1": "deploy", "p2": "prod"}
	if kb.MetricKey("proj", "deployment_frequency", 1, 2, 3, a, "f0") == kb.MetricKey("proj", "deployment_frequency", 1, 2, 3, c, "f0") {
		t.Errorf("Expected different keys for different role maps")
	}

	key := kb.MetricKey("proj", "deployment_frequency", 100, 200, 30, a, "f0")
	if !strings.HasPrefix(key, "metrics:metric:proj:deployment_frequency:100:200:30:") || !strings.HasSuffix(key, ":f0") {
		t.Errorf("Unexpected key layout: %s", key)
	}

	if key == kb.MetricKey("proj", "deployment_frequency", 100, 200, 30, a, "f1") {
		t.Errorf("Expected different keys for different inputs")
	}
}

func TestFingerprintJSON(t *testing.T) {
	first, err := FingerprintJSON([]cachedValue{{Name: "a", Count: 1}})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	again, _ := FingerprintJSON([]cachedValue{{Name: "a", Count: 1}})
	changed, _ := FingerprintJSON([]cachedValue{{Name: "a", Count: 1}, {Name: "b"}})

	if first != again {
		t.Errorf("Expected stable fingerprint, got %s and %s", first, again)
	}
	if first == changed {
		t.Errorf("Expected fingerprint to change with the value")
	}
	if _, err := FingerprintJSON(make(chan int)); err == nil {
		t.Errorf("Expected error for unencodable value")
	}
}

func TestRecencyTTL(t *testing.T) {
	if ttl := RecencyTTL(time.Now().Add(-30 * 24 * time.Hour)); ttl != 24*time.Hour {
		t.Errorf("Expected 24h TTL for historical data, got %v", ttl)
	}
	if ttl := RecencyTTL(time.Now()); ttl != time.Hour {
		t.Errorf("Expected 1h TTL for recent data, got %v", ttl)
	}
}

func TestNopCache(t *testing.T) {
	var c Cache = NopCache{}
	if err := c.Set("key", cachedValue{}, time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	var got cachedValue
	if err := c.Get("key", &got); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestFileCache_GroupsByNamespace(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCacheWithDir(dir)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	tests := map[string]string{
		"metrics:metric:proj": "metrics",
		"source:executions:x": "source",
		"plain":               "default",
		"../escape:x":         "default",
	}
	for key, want := range tests {
		if got := filepath.Base(filepath.Dir(c.path(key))); got != want {
			t.Errorf("path(%q) is under %q, want %q", key, got, want)
		}
		if !strings.HasPrefix(c.path(key), dir) {
			t.Errorf("path(%q) escapes the cache dir: %s", key, c.path(key))
		}
	}
}

func TestFileCache_UnusableEntriesMiss(t *testing.T) {
	c, err := NewFileCacheWithDir(t.TempDir())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	write := func(key, contents string) {
		t.Helper()
		if err := writeAtomic(c.path(key), []byte(contents)); err != nil {
			t.Fatalf("write entry: %v", err)
		}
	}

	write("metrics:corrupt", "{not json")
	write("metrics:foreign", `{"version": 2, "key": "metrics:other", "data": {"name": "x"}}`)
	write("metrics:old", `{"data": {"name": "x"}}`)

	for _, key := range []string{"metrics:corrupt", "metrics:foreign", "metrics:old"} {
		var got cachedValue
		if err := c.Get(key, &got); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("Get(%q): expected ErrCacheMiss, got %v", key, err)
		}
		if _, err := os.Stat(c.path(key)); !os.IsNotExist(err) {
			t.Errorf("Expected unusable entry %q to be removed", key)
		}
	}
}

func TestFileCache_Prune(t *testing.T) {
	c, err := NewFileCacheWithDir(t.TempDir())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if err := c.Set("metrics:short", cachedValue{Name: "short"}, time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Set("metrics:long", cachedValue{Name: "long"}, 24*time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Set("source:forever", cachedValue{Name: "forever"}, 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := writeAtomic(c.path("source:corrupt"), []byte("garbage")); err != nil {
		t.Fatalf("write entry: %v", err)
	}

	now = now.Add(2 * time.Hour)
	removed, err := c.Prune()
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 entries pruned, got %d", removed)
	}

	var got cachedValue
	for _, key := range []string{"metrics:long", "source:forever"} {
		if err := c.Get(key, &got); err != nil {
			t.Errorf("Expected %q to survive pruning, got %v", key, err)
		}
	}
	if err := c.Get("metrics:short", &got); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected expired entry to be gone, got %v", err)
	}
}

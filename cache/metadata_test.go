package cache

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/jmgilman/go/errors"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestMetadataStore_PersistsAcrossOpen(t *testing.T) {
	fs := memfs.New()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	store, err := OpenMetadataStore(fs, "/cache/metadata.json", withStoreClock(clock.Now))
	if err != nil {
		t.Fatalf("OpenMetadataStore() error = %v", err)
	}

	rec := Record{
		RepoURL:    "https://example.com/r.git",
		Branch:     "main",
		CommitHash: "abc",
		SizeBytes:  42,
		CachePath:  "/cache/k1",
	}
	if err := store.Store("k1", rec); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	reopened, err := OpenMetadataStore(fs, "/cache/metadata.json")
	if err != nil {
		t.Fatalf("OpenMetadataStore() reopen error = %v", err)
	}

	got, ok := reopened.Get("k1")
	if !ok {
		t.Fatalf("Get() missing record after reopen")
	}
	if got.RepoURL != rec.RepoURL || got.SizeBytes != 42 || got.CommitHash != "abc" {
		t.Errorf("Get() = %+v, want fields of %+v", got, rec)
	}
	if !got.CreatedAt.Equal(clock.now) || !got.LastAccessed.Equal(clock.now) {
		t.Errorf("timestamps = %v/%v, want %v", got.CreatedAt, got.LastAccessed, clock.now)
	}

	entries, err := fs.ReadDir("/cache")
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "metadata.json" {
		t.Errorf("cache dir holds %d entries, want only metadata.json", len(entries))
	}
}

func TestMetadataStore_StoreKeepsCreatedAt(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store, err := OpenMetadataStore(memfs.New(), "/m.json", withStoreClock(clock.Now))
	if err != nil {
		t.Fatalf("OpenMetadataStore() error = %v", err)
	}

	created := clock.now
	if err := store.Store("k", Record{RepoURL: "u"}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	clock.Advance(time.Hour)
	if err := store.Store("k", Record{RepoURL: "u", CommitHash: "new"}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	got, _ := store.Get("k")
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	if !got.LastAccessed.Equal(clock.now) {
		t.Errorf("LastAccessed = %v, want %v", got.LastAccessed, clock.now)
	}
}

func TestMetadataStore_Touch(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store, err := OpenMetadataStore(memfs.New(), "/m.json", withStoreClock(clock.Now))
	if err != nil {
		t.Fatalf("OpenMetadataStore() error = %v", err)
	}

	err = store.Touch("missing")
	if errors.GetCode(err) != errors.CodeNotFound {
		t.Errorf("Touch() missing key code = %v, want %v", errors.GetCode(err), errors.CodeNotFound)
	}

	if err := store.Store("k", Record{RepoURL: "u"}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	clock.Advance(2 * time.Hour)
	if err := store.Touch("k"); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	got, _ := store.Get("k")
	if !got.LastAccessed.Equal(clock.now) {
		t.Errorf("LastAccessed = %v, want %v", got.LastAccessed, clock.now)
	}
	if got.CreatedAt.Equal(clock.now) {
		t.Errorf("Touch() changed CreatedAt")
	}
}

func TestMetadataStore_RemoveAndKeys(t *testing.T) {
	store, err := OpenMetadataStore(memfs.New(), "/m.json")
	if err != nil {
		t.Fatalf("OpenMetadataStore() error = %v", err)
	}

	for _, key := range []string{"c", "a", "b"} {
		if err := store.Store(key, Record{RepoURL: key}); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}

	if err := store.Remove("b"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := store.Remove("missing"); err != nil {
		t.Errorf("Remove() missing key error = %v", err)
	}

	keys := store.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "c" {
		t.Errorf("Keys() = %v, want [a c]", keys)
	}
	if len(store.List()) != 2 {
		t.Errorf("List() = %d records, want 2", len(store.List()))
	}
}

func TestMetadataStore_RecordsCheckoutShape(t *testing.T) {
	fs := memfs.New()
	store, err := OpenMetadataStore(fs, "/m.json")
	if err != nil {
		t.Fatalf("OpenMetadataStore() error = %v", err)
	}

	if err := store.Store("k", Record{RepoURL: "u", Sources: []string{"docs", "src"}, Method: "shallow"}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	reopened, err := OpenMetadataStore(fs, "/m.json")
	if err != nil {
		t.Fatalf("OpenMetadataStore() reopen error = %v", err)
	}
	got, _ := reopened.Get("k")
	if len(got.Sources) != 2 || got.Sources[0] != "docs" || got.Sources[1] != "src" || got.Method != "shallow" {
		t.Errorf("Get() = %+v, want sources [docs src] and method shallow", got)
	}
}

func TestMetadataStore_StoresOnSamePathMerge(t *testing.T) {
	fs := memfs.New()

	first, err := OpenMetadataStore(fs, "/cache/metadata.json")
	if err != nil {
		t.Fatalf("OpenMetadataStore() error = %v", err)
	}
	second, err := OpenMetadataStore(fs, "/cache/metadata.json")
	if err != nil {
		t.Fatalf("OpenMetadataStore() error = %v", err)
	}

	if err := first.Store("a", Record{RepoURL: "a"}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if err := second.Store("b", Record{RepoURL: "b"}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	if keys := first.Keys(); len(keys) != 2 {
		t.Errorf("first.Keys() = %v, want [a b]", keys)
	}

	if err := first.Remove("b"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, ok := second.Get("b"); ok {
		t.Errorf("second.Get() still sees removed key")
	}
	if _, ok := second.Get("a"); !ok {
		t.Errorf("second.Get() lost key written by first store")
	}
}

func TestMetadataStore_ConcurrentStoresKeepEveryRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.json")
	lockPath := filepath.Join(dir, "metadata.lock")

	const perStore = 20
	stores := make([]*MetadataStore, 2)
	for i := range stores {
		store, err := OpenMetadataStore(osfs.New("/"), path, withStoreLock(lockPath))
		if err != nil {
			t.Fatalf("OpenMetadataStore() error = %v", err)
		}
		stores[i] = store
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(stores)*perStore)
	for i, store := range stores {
		wg.Add(1)
		go func(i int, store *MetadataStore) {
			defer wg.Done()
			for j := 0; j < perStore; j++ {
				key := fmt.Sprintf("store%d-key%d", i, j)
				if err := store.Store(key, Record{RepoURL: key}); err != nil {
					errs <- err
				}
			}
		}(i, store)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Store() error = %v", err)
	}

	reopened, err := OpenMetadataStore(osfs.New("/"), path)
	if err != nil {
		t.Fatalf("OpenMetadataStore() reopen error = %v", err)
	}
	if got := len(reopened.Keys()); got != len(stores)*perStore {
		t.Errorf("reopened store has %d records, want %d", got, len(stores)*perStore)
	}

	leftovers, err := filepath.Glob(filepath.Join(dir, "metadata.json.*"))
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	if len(leftovers) != 0 {
		t.Errorf("temporary files left behind: %v", leftovers)
	}
}

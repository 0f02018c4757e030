package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"musicsync/internal/catalog"
	"musicsync/internal/logging"
)

// MustOpenCatalog opens a catalog.Store in a temp directory and registers cleanup.
func MustOpenCatalog(t testing.TB) *catalog.Store {
	t.Helper()
	store, err := catalog.Open(context.Background(), filepath.Join(t.TempDir(), "synchronized.sqlite"), logging.NewNop())
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Hash returns a deterministic 16-byte content hash seeded by b.
func Hash(b byte) []byte {
	out := make([]byte, catalog.HashSize)
	for i := range out {
		out[i] = b
	}
	return out
}

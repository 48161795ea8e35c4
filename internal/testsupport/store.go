package testsupport

import (
	"testing"

	"recap/internal/chunkstore"
	"recap/internal/config"
)

// MustOpenStore opens the chunk store under cfg's state directory and
// registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *chunkstore.Store {
	t.Helper()

	store, err := chunkstore.Open(cfg.StatePath())
	if err != nil {
		t.Fatalf("chunkstore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"crowdedhouse/internal/store"
	"crowdedhouse/internal/store/storetest"
)

func testClient(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "story.db")
	client, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close(ctx) })
	if err := client.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return client
}

func TestStore(t *testing.T) {
	storetest.Run(t, testClient)
}

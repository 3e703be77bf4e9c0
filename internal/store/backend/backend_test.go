package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"specsbiz/backend/internal/config"
	"specsbiz/backend/internal/store/memory"
)

func TestOpenLocalCreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.db")
	b, err := Open(context.Background(), config.Config{StoreMode: config.StoreModeLocal, SQLitePath: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	assert.Equal(t, config.StoreModeLocal, b.Mode)
	products, err := b.Repo.ListProducts(context.Background(), "local")
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestOpenMemoryIsSeeded(t *testing.T) {
	b, err := Open(context.Background(), config.Config{StoreMode: config.StoreModeMemory})
	require.NoError(t, err)

	products, err := b.Repo.ListProducts(context.Background(), memory.DemoOwnerID)
	require.NoError(t, err)
	assert.Len(t, products, 4)
}

func TestOpenCloudRequiresURL(t *testing.T) {
	_, err := Open(context.Background(), config.Config{StoreMode: config.StoreModeCloud})
	require.Error(t, err)
}

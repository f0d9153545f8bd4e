package livetv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/Gostream/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "credentials.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreIssueOrderAndExclusion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, models.Credential{ID: "a", AuthMaterial: "tok-a"}))
	require.NoError(t, store.Add(ctx, models.Credential{ID: "b", AuthMaterial: "tok-b"}))

	cred, err := store.Issue(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "a", cred.ID)
	assert.Equal(t, "tok-a", cred.AuthMaterial)

	cred, err = store.Issue(ctx, []string{"a"})
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "b", cred.ID)

	cred, err = store.Issue(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestSQLiteStoreInvalidatePersists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, models.Credential{ID: "a", AuthMaterial: "tok-a"}))
	require.NoError(t, store.Invalidate(ctx, "a"))

	cred, err := store.Issue(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, cred)

	n, err := store.Remaining(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Re-adding revives the credential.
	require.NoError(t, store.Add(ctx, models.Credential{ID: "a", AuthMaterial: "tok-a2"}))
	cred, err = store.Issue(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "tok-a2", cred.AuthMaterial)
}

func TestSQLiteStoreEmptyPool(t *testing.T) {
	store := newTestStore(t)

	cred, err := store.Issue(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, cred)

	n, err := store.Remaining(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

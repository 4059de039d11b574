package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_Watermarks(t *testing.T) {
	t.Parallel()

	st := newTestState(t)
	ctx := context.Background()

	require.NoError(t, st.SaveWatermarks(ctx, map[string]string{
		"Products": "2024-01-01T00:00:00Z",
		"Stock":    "2024-01-02T00:00:00Z",
	}, "2024-01-03T00:00:00Z"))

	require.NoError(t, st.TouchWatermarks(ctx, []string{"Stock", "Sales"}, "2024-01-04T00:00:00Z"))

	got, err := st.Watermarks(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, Watermark{Table: "Products", RemoteModified: "2024-01-01T00:00:00Z", SyncedAt: "2024-01-03T00:00:00Z"}, got[0])
	assert.Equal(t, Watermark{Table: "Sales", RemoteModified: "", SyncedAt: "2024-01-04T00:00:00Z"}, got[1])
	assert.Equal(t, Watermark{Table: "Stock", RemoteModified: "2024-01-02T00:00:00Z", SyncedAt: "2024-01-04T00:00:00Z"}, got[2])
}

func TestState_LastSync(t *testing.T) {
	t.Parallel()

	st := newTestState(t)
	ctx := context.Background()

	v, err := st.LastSync(ctx)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, st.SetLastSync(ctx, "a"))
	require.NoError(t, st.SetLastSync(ctx, "b"))

	v, err = st.LastSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

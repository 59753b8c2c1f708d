package maintenance

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tether/internal/sessions"
	"tether/pkg/protocol"
)

func TestSchedulerPrunesStaleSnapshotRows(t *testing.T) {
	store, err := sessions.OpenStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	stale := protocol.Session{ID: "old", Title: "old", UpdatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := protocol.Session{ID: "new", Title: "new", UpdatedAt: time.Now()}
	require.NoError(t, store.SaveSnapshot([]protocol.Session{stale, fresh}))

	s := NewScheduler(store, 24*time.Hour, zaptest.NewLogger(t))
	require.NoError(t, s.Start("* * * * * *"))
	defer s.Stop()

	require.Eventually(t, func() bool {
		got, err := store.Snapshot()
		return err == nil && len(got) == 1
	}, 5*time.Second, 100*time.Millisecond)

	got, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "new", got[0].ID)
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	store, err := sessions.OpenStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	s := NewScheduler(store, time.Hour, zaptest.NewLogger(t))
	assert.Error(t, s.Start("not a schedule"))
}

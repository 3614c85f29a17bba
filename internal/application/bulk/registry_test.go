package bulk

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState(id string, vendorID int64, started time.Time) State {
	return State{
		OperationID: id,
		VendorID:    vendorID,
		Operation:   KindDelete,
		Status:      StatusPending,
		StartTime:   started,
		Progress:    Progress{Total: 3},
	}
}

func TestMemoryRegistry_CreateGet(t *testing.T) {
	r := NewMemoryRegistry()
	require.NoError(t, r.Create(newState("a", 1, time.Now())))
	assert.Error(t, r.Create(newState("a", 1, time.Now())), "duplicate id")

	st, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, StatusPending, st.Status)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestMemoryRegistry_GetReturnsCopy(t *testing.T) {
	r := NewMemoryRegistry()
	require.NoError(t, r.Create(newState("a", 1, time.Now())))
	require.NoError(t, r.Update("a", func(st *State) {
		st.Results.SuccessfulIDs = append(st.Results.SuccessfulIDs, 1)
	}))

	st, _ := r.Get("a")
	st.Results.SuccessfulIDs[0] = 99

	again, _ := r.Get("a")
	assert.Equal(t, []int64{1}, again.Results.SuccessfulIDs)
}

func TestMemoryRegistry_TerminalIsFrozen(t *testing.T) {
	r := NewMemoryRegistry()
	require.NoError(t, r.Create(newState("a", 1, time.Now())))
	require.NoError(t, r.Update("a", func(st *State) { st.Status = StatusCompleted }))

	err := r.Update("a", func(st *State) { st.Status = StatusProcessing })
	assert.ErrorIs(t, err, ErrOperationFinalized)

	st, _ := r.Get("a")
	assert.Equal(t, StatusCompleted, st.Status)

	assert.ErrorIs(t, r.Update("nope", func(*State) {}), ErrOperationNotFound)
}

func TestMemoryRegistry_ListByVendorNewestFirst(t *testing.T) {
	r := NewMemoryRegistry()
	now := time.Now()
	require.NoError(t, r.Create(newState("old", 1, now.Add(-time.Minute))))
	require.NoError(t, r.Create(newState("new", 1, now)))
	require.NoError(t, r.Create(newState("other", 2, now)))

	list := r.List(1)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].OperationID)
	assert.Equal(t, "old", list[1].OperationID)
}

func TestMemoryRegistry_Evict(t *testing.T) {
	r := NewMemoryRegistry()
	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now()

	require.NoError(t, r.Create(newState("done-old", 1, old)))
	require.NoError(t, r.Update("done-old", func(st *State) { st.Status = StatusCompleted; st.EndTime = &old }))
	require.NoError(t, r.Create(newState("done-new", 1, recent)))
	require.NoError(t, r.Update("done-new", func(st *State) { st.Status = StatusFailed; st.EndTime = &recent }))
	require.NoError(t, r.Create(newState("running", 1, old)))

	assert.Equal(t, 1, r.Evict(time.Hour))

	_, ok := r.Get("done-old")
	assert.False(t, ok)
	_, ok = r.Get("done-new")
	assert.True(t, ok)
	_, ok = r.Get("running")
	assert.True(t, ok, "non-terminal entries are never evicted")
}

func TestMemoryRegistry_ConcurrentUpdates(t *testing.T) {
	r := NewMemoryRegistry()
	const ops, items = 8, 200
	for i := 0; i < ops; i++ {
		require.NoError(t, r.Create(newState(fmt.Sprint(i), 1, time.Now())))
	}

	var wg sync.WaitGroup
	for i := 0; i < ops; i++ {
		id := fmt.Sprint(i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for n := 0; n < items; n++ {
				_ = r.Update(id, func(st *State) {
					st.Progress.Processed++
					st.Progress.Successful++
				})
			}
		}()
		go func() {
			defer wg.Done()
			for n := 0; n < items; n++ {
				st, _ := r.Get(id)
				assert.Equal(t, st.Progress.Processed, st.Progress.Successful+st.Progress.Failed)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < ops; i++ {
		st, _ := r.Get(fmt.Sprint(i))
		assert.Equal(t, items, st.Progress.Processed)
	}
}

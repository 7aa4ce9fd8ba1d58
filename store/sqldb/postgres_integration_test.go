//go:build integration

package sqldb_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/kdl/schedule-engine/scheduling"
	"github.com/kdl/schedule-engine/store/sqldb"
)

// newPostgresStore starts a throwaway PostgreSQL and opens a migrated Store on it.
func newPostgresStore(t *testing.T) *sqldb.Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	pg, err := postgres.RunContainer(ctx,
		tc.WithImage("postgres:17-alpine"),
		postgres.WithDatabase("schedule"),
		postgres.WithUsername("schedule"),
		postgres.WithPassword("schedule"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		_ = pg.Terminate(stopCtx)
	})

	uri, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	var st *sqldb.Store
	deadline := time.Now().Add(20 * time.Second)
	for {
		st, err = sqldb.OpenPostgres(ctx, uri)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestPostgres_UniqueIndexTranslation(t *testing.T) {
	st := newPostgresStore(t)
	ctx := context.Background()
	assert.Equal(t, sqldb.DriverPostgres, st.Dialect())

	seedSession(t, st, "sess-a", "stu-a", "T1")
	seedSession(t, st, "sess-b", "stu-b", "T2")
	nine := slot("2025-03-10", "09:00", "10:00")
	require.NoError(t, st.InsertSchedules(ctx, []scheduling.Schedule{scheduleRow("s1", "sess-a", "T1", "stu-a", "R1", nine)}))

	err := st.InsertSchedules(ctx, []scheduling.Schedule{scheduleRow("s2", "sess-b", "T2", "stu-b", "R1", nine)})
	var uv *scheduling.UniqueViolationError
	require.ErrorAs(t, err, &uv)
	assert.Equal(t, scheduling.DimensionRoom, uv.Dimension)
	assert.Equal(t, "uq_schedules_room_slot", uv.Constraint)

	err = st.InsertSchedules(ctx, []scheduling.Schedule{scheduleRow("s1", "sess-b", "T2", "stu-b", "R2", slot("2025-03-11", "09:00", "10:00"))})
	assert.ErrorIs(t, err, scheduling.ErrDuplicate)
}

func TestPostgres_ConcurrentBatchesSameTeacher(t *testing.T) {
	// GIVEN: Six sessions competing for T1 at the same slot
	st := newPostgresStore(t)
	ctx := context.Background()
	eng := scheduling.NewEngine(st, testRules())
	_, err := eng.SaveClassOption(ctx, scheduling.ClassOption{ID: "opt-package", Name: "Package", Mode: scheduling.ModePackageOpen})
	require.NoError(t, err)

	const n = 6
	for i := 0; i < n; i++ {
		_, err := eng.CreateSession(ctx, scheduling.NewSession{
			ID:            scheduling.SessionID(fmt.Sprintf("sess-%d", i)),
			StudentID:     scheduling.StudentID(fmt.Sprintf("stu-%d", i)),
			CourseID:      "c",
			TeacherID:     "T1",
			ClassOptionID: "opt-package",
		})
		require.NoError(t, err)
	}

	// WHEN: All commit concurrently
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		refused int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := eng.CreateBulkSchedules(ctx, scheduling.BatchRequest{
				SessionID: scheduling.SessionID(fmt.Sprintf("sess-%d", i)),
				Slots:     []scheduling.Slot{slot("2025-03-10", "09:00", "10:00")},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, scheduling.ErrConflict):
				refused++
			}
		}(i)
	}
	wg.Wait()

	// THEN: One winner, every loser gets a conflict, one row for T1 at 09:00
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, refused)
	active, err := st.ListActiveSchedules(ctx, scheduling.ScheduleFilter{
		Dates:      []scheduling.Date{scheduling.MustParseDate("2025-03-10")},
		TeacherIDs: []scheduling.TeacherID{"T1"},
	})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

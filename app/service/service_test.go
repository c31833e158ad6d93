package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/reevolve/reevolve/app/service/mocks"
	"github.com/reevolve/reevolve/app/service/request"
	"github.com/reevolve/reevolve/app/web/persistence"
)

var fixedNow = time.Date(2026, 10, 17, 9, 15, 30, 987654321, time.UTC)

func validSubmit() request.Submit {
	return request.Submit{
		FullName:     "Jane Doe",
		Email:        "jane@x.com",
		Phone:        "555-0100",
		FitnessLevel: "beginner",
		PrimaryGoal:  "fat-loss",
	}
}

func newSQLiteRecords(t *testing.T, notifier Notifier) (*Records, *persistence.SQLiteStore) {
	t.Helper()
	store, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "applications.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	svc := New(Params{Store: store, Notifier: notifier, Now: func() time.Time { return fixedNow }})
	return svc, store
}

func TestRecords_SubmitScenario(t *testing.T) {
	svc, _ := newSQLiteRecords(t, nil)
	ctx := context.Background()

	rec, err := svc.Submit(ctx, validSubmit())
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.ID)
	assert.Equal(t, fixedNow.Truncate(time.Millisecond), rec.Timestamp)

	recs, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, persistence.Record{
		ID:           1,
		FullName:     "Jane Doe",
		Email:        "jane@x.com",
		Phone:        "555-0100",
		FitnessLevel: "beginner",
		PrimaryGoal:  "fat-loss",
		WhyCoaching:  "",
		Timestamp:    fixedNow.Truncate(time.Millisecond),
	}, recs[0])
}

func TestRecords_SubmitValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(r *request.Submit)
		fields []string
	}{
		{"no full name", func(r *request.Submit) { r.FullName = "" }, []string{"fullName"}},
		{"no email", func(r *request.Submit) { r.Email = "" }, []string{"email"}},
		{"no phone", func(r *request.Submit) { r.Phone = "" }, []string{"phone"}},
		{"no fitness level", func(r *request.Submit) { r.FitnessLevel = "" }, []string{"fitnessLevel"}},
		{"no primary goal", func(r *request.Submit) { r.PrimaryGoal = "" }, []string{"primaryGoal"}},
		{"everything missing", func(r *request.Submit) { *r = request.Submit{WhyCoaching: "just because"} },
			[]string{"fullName", "email", "phone", "fitnessLevel", "primaryGoal"}},
	}

	svc, store := newSQLiteRecords(t, nil)
	ctx := context.Background()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validSubmit()
			tt.modify(&req)
			_, err := svc.Submit(ctx, req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.fields, verr.Fields)

			recs, err := store.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, recs, "nothing inserted on validation error")
		})
	}
}

func TestRecords_SubmitIncreasingIDs(t *testing.T) {
	svc, _ := newSQLiteRecords(t, nil)
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		rec, err := svc.Submit(ctx, validSubmit())
		require.NoError(t, err)
		assert.Greater(t, rec.ID, last)
		last = rec.ID
		if i == 2 {
			require.NoError(t, svc.Remove(ctx, rec.ID))
		}
	}
	assert.Equal(t, int64(5), last)
}

func TestRecords_SubmitStoreError(t *testing.T) {
	store := &mocks.Store{}
	store.On("Insert", mock.Anything, mock.Anything).Return(persistence.Record{}, errors.New("disk full")).Once()
	notif := &mocks.Notifier{}

	svc := New(Params{Store: store, Notifier: notif})
	_, err := svc.Submit(context.Background(), validSubmit())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NotErrorIs(t, err, ErrValidation)

	svc.Close()
	store.AssertExpectations(t)
	notif.AssertNotCalled(t, "NotifyApplication", mock.Anything, mock.Anything)
}

func TestRecords_SubmitNotifies(t *testing.T) {
	notif := &mocks.Notifier{}
	var called atomic.Int32
	notif.On("NotifyApplication", mock.Anything, mock.MatchedBy(func(rec persistence.Record) bool {
		return rec.ID == 1 && rec.FullName == "Jane Doe"
	})).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		called.Add(1)
	}).Return(errors.New("smtp down")).Once()

	svc, _ := newSQLiteRecords(t, notif)
	_, err := svc.Submit(context.Background(), validSubmit())
	require.NoError(t, err, "notification failure doesn't fail submission")

	svc.Close()
	assert.Equal(t, int32(1), called.Load())
	notif.AssertExpectations(t)
}

func TestRecords_Remove(t *testing.T) {
	svc, _ := newSQLiteRecords(t, nil)
	ctx := context.Background()

	rec, err := svc.Submit(ctx, validSubmit())
	require.NoError(t, err)

	err = svc.Remove(ctx, 999)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	recs, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	require.NoError(t, svc.Remove(ctx, rec.ID))
	_, err = svc.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestRecords_RemoveAll(t *testing.T) {
	svc, _ := newSQLiteRecords(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Submit(ctx, validSubmit())
		require.NoError(t, err)
	}
	n, err := svc.RemoveAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	recs, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRecords_RemoveAllError(t *testing.T) {
	store := &mocks.Store{}
	store.On("DeleteAll", mock.Anything).Return(int64(0), errors.New("io error")).Once()
	svc := New(Params{Store: store})

	_, err := svc.RemoveAll(context.Background())
	assert.EqualError(t, err, "io error")
	store.AssertExpectations(t)
}

func TestRecords_Stats(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		svc, _ := newSQLiteRecords(t, nil)
		stats, err := svc.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Total)
		assert.Equal(t, 0, stats.Today)
		assert.Empty(t, stats.TopGoal)
		assert.True(t, stats.LatestAt.IsZero())
	})

	t.Run("uses service clock", func(t *testing.T) {
		store := &mocks.Store{}
		store.On("Aggregate", mock.Anything, fixedNow).Return(persistence.Stats{Total: 2, Today: 1, TopGoal: "strength"}, nil).Once()
		svc := New(Params{Store: store, Now: func() time.Time { return fixedNow }})

		stats, err := svc.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, persistence.Stats{Total: 2, Today: 1, TopGoal: "strength"}, stats)
		store.AssertExpectations(t)
	})

	t.Run("with records", func(t *testing.T) {
		svc, _ := newSQLiteRecords(t, nil)
		ctx := context.Background()
		for _, goal := range []string{"strength", "fat-loss", "strength"} {
			req := validSubmit()
			req.PrimaryGoal = goal
			_, err := svc.Submit(ctx, req)
			require.NoError(t, err)
		}
		stats, err := svc.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Total)
		assert.Equal(t, 3, stats.Today)
		assert.Equal(t, "strength", stats.TopGoal)
		assert.Equal(t, fixedNow.Truncate(time.Millisecond), stats.LatestAt)
	})
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Fields: []string{"email", "phone"}}
	assert.Equal(t, "missing required fields: email, phone", err.Error())
	assert.True(t, errors.Is(err, ErrValidation))
}

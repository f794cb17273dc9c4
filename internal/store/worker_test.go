package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pbaille/folio/internal/domain"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "folio.db"))
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	w := NewWorker(s, logger)
	t.Cleanup(func() {
		w.Close()
		s.Close()
	})
	return w
}

func newTerm(kind domain.Kind, slug string, parentID *string) *domain.Term {
	return &domain.Term{
		ID:         uuid.New().String(),
		Kind:       kind,
		Slug:       slug,
		Name:       slug,
		Provenance: domain.ProvenanceManual,
		ParentID:   parentID,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestWorkerRunsUnitsInSubmissionOrder(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	var order []int
	var results []<-chan Result
	for i := 0; i < 50; i++ {
		i := i
		results = append(results, w.Submit(ctx, func(tx *Tx) (any, error) {
			order = append(order, i)
			return i, nil
		}))
	}
	for i, ch := range results {
		r := <-ch
		require.NoError(t, r.Err)
		assert.Equal(t, i, r.Value)
	}

	require.Len(t, order, 50)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
	assert.EqualValues(t, 50, w.Submitted())
}

func TestWorkerNeverOverlapsUnits(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, err := w.Do(ctx, func(tx *Tx) (any, error) {
					n := active.Add(1)
					if n > maxActive.Load() {
						maxActive.Store(n)
					}
					time.Sleep(time.Millisecond)
					active.Add(-1)
					return nil, nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, maxActive.Load())
}

func TestWorkerRollsBackFailedUnit(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := w.Do(ctx, func(tx *Tx) (any, error) {
		if err := tx.InsertTerm(newTerm(domain.KindTag, "swift", nil)); err != nil {
			return nil, err
		}
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	assert.EqualValues(t, 0, w.Store().Writes())

	found, err := Perform(ctx, w, func(tx *Tx) (*domain.Term, error) {
		return tx.FindTerm(domain.KindTag, "swift", "")
	})
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestWorkerRecoversFromPanic(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	_, err := w.Do(ctx, func(tx *Tx) (any, error) {
		panic("unit of work exploded")
	})
	require.Error(t, err)

	v, err := w.Do(ctx, func(tx *Tx) (any, error) { return "still running", nil })
	require.NoError(t, err)
	assert.Equal(t, "still running", v)
}

func TestWorkerSkipsCancelledUnit(t *testing.T) {
	w := newTestWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	_, err := w.Do(ctx, func(tx *Tx) (any, error) {
		ran = true
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestWorkerUnavailable(t *testing.T) {
	var nilWorker *Worker
	_, err := nilWorker.Do(context.Background(), func(tx *Tx) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	w := newTestWorker(t)
	require.NoError(t, w.Close())
	_, err = w.Do(context.Background(), func(tx *Tx) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestWorkerCloseDrainsQueue(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	var ran atomic.Int32
	var results []<-chan Result
	for i := 0; i < 10; i++ {
		results = append(results, w.Submit(ctx, func(tx *Tx) (any, error) {
			time.Sleep(time.Millisecond)
			ran.Add(1)
			return nil, nil
		}))
	}
	require.NoError(t, w.Close())

	assert.EqualValues(t, 10, ran.Load())
	for _, ch := range results {
		assert.NoError(t, (<-ch).Err)
	}
}

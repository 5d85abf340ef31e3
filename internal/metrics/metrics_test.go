package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveStore(t *testing.T) {
	before := testutil.ToFloat64(StoreOperations.WithLabelValues("test_op", OutcomeOK))
	ObserveStore("test_op", OutcomeOK, time.Now())
	after := testutil.ToFloat64(StoreOperations.WithLabelValues("test_op", OutcomeOK))
	if after-before != 1 {
		t.Errorf("store operations delta: got %v, want 1", after-before)
	}
}

func TestCollectorsRegistered(t *testing.T) {
	Downloads.WithLabelValues("pdf").Inc()
	if n := testutil.CollectAndCount(Downloads); n == 0 {
		t.Error("downloads collector produced no series")
	}
}

func TestActiveSessionsFollowsCounter(t *testing.T) {
	n := 3
	gauge := NewActiveSessions(func(context.Context) (int, error) { return n, nil })
	if got := testutil.ToFloat64(gauge); got != 3 {
		t.Errorf("sessions: got %v, want 3", got)
	}

	n = 1
	if got := testutil.ToFloat64(gauge); got != 1 {
		t.Errorf("sessions after expiry: got %v, want 1", got)
	}

	failing := NewActiveSessions(func(context.Context) (int, error) { return 0, errors.New("down") })
	if got := testutil.ToFloat64(failing); got != -1 {
		t.Errorf("failed count: got %v, want -1", got)
	}
}

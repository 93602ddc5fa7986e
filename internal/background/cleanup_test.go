package background

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCleanupManager_RunOnce_ContinuesAfterFailure(t *testing.T) {
	var ran []string
	tasks := []CleanupTask{
		{Table: "otp_codes", Run: func(ctx context.Context) (int64, error) {
			ran = append(ran, "otp_codes")
			return 0, errors.New("db down")
		}},
		{Table: "otp_rate_limits", Run: func(ctx context.Context) (int64, error) {
			ran = append(ran, "otp_rate_limits")
			return 4, nil
		}},
	}

	NewCleanupManager(tasks, nil, discardLogger(), time.Hour).RunOnce(context.Background())

	assert.Equal(t, []string{"otp_codes", "otp_rate_limits"}, ran)
}

func TestCleanupManager_StartRunsImmediatelyAndStops(t *testing.T) {
	var runs atomic.Int32
	cm := NewCleanupManager([]CleanupTask{{
		Table: "otp_codes",
		Run: func(ctx context.Context) (int64, error) {
			runs.Add(1)
			return 1, nil
		},
	}}, nil, discardLogger(), time.Hour)

	done := make(chan struct{})
	go func() {
		cm.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	cm.Stop()
	cm.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager did not stop")
	}
}

func TestCleanupManager_StopsOnContextCancel(t *testing.T) {
	cm := NewCleanupManager(nil, nil, discardLogger(), 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		cm.Start(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager did not stop")
	}
}

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsTask(t *testing.T) {
	s := New(nil)
	ran := make(chan struct{}, 4)
	require.NoError(t, s.Every(time.Hour, "cleanup", func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	}))

	s.Start()
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
}

func TestSchedulerRejectsInvalidInterval(t *testing.T) {
	s := New(nil)
	assert.Error(t, s.Every(0, "noop", func(context.Context) error { return nil }))
}

package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestTriggerFiresARun(t *testing.T) {
	var calls int32
	s := New(time.Hour, func(ctx context.Context) { atomic.AddInt32(&calls, 1) }, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	s.Trigger()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestTriggerDoesNotAutoFireOnStart(t *testing.T) {
	var calls int32
	s := New(time.Hour, func(ctx context.Context) { atomic.AddInt32(&calls, 1) }, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	cancel()
	<-done
}

func TestSecondTriggerDroppedWhileFirstQueued(t *testing.T) {
	block := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	var blockOnce sync.Once

	s := New(time.Hour, func(ctx context.Context) {
		atomic.AddInt32(&calls, 1)
		blockOnce.Do(func() { close(block) })
		<-release
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	s.Trigger()
	<-block // first tick is now running, blocked on release

	s.Trigger() // consumed only after the first run() returns; queued
	s.Trigger() // this one should be dropped: a trigger is already queued

	close(release)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, s.MissedTicks())

	cancel()
	<-done
}

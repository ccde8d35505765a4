package jobmgr

import (
	"context"
	"testing"
	"time"
)

func TestStartAsyncRunsJob(t *testing.T) {
	done := make(chan struct{})
	m := NewManager(nil)

	err := m.StartAsync(context.Background(), "probe", func(ctx context.Context) error {
		close(done)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestStartAsyncRejectsDuplicate(t *testing.T) {
	m := NewManager(nil)
	block := make(chan struct{})
	defer close(block)

	err := m.StartAsync(context.Background(), "loop", func(ctx context.Context) error {
		<-block
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := m.StartAsync(context.Background(), "loop", func(ctx context.Context) error { return nil }); err == nil {
		t.Error("expected error for duplicate job name")
	}
}

func TestStopCancelsJob(t *testing.T) {
	m := NewManager(nil)
	stopped := make(chan struct{})

	err := m.StartAsync(context.Background(), "loop", func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Stop("loop"); err != nil {
		t.Fatal(err)
	}
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not observe cancellation")
	}

	if err := m.Stop("loop"); err == nil {
		t.Error("stopping a stopped job must fail")
	}
}

func TestStartAsyncInheritsParentContext(t *testing.T) {
	m := NewManager(nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})

	err := m.StartAsync(ctx, "loop", func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	})
	if err != nil {
		t.Fatal(err)
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not observe parent cancellation")
	}
}

func TestList(t *testing.T) {
	m := NewManager(nil)
	block := make(chan struct{})
	defer close(block)

	if err := m.StartAsync(context.Background(), "a", func(ctx context.Context) error { <-block; return nil }); err != nil {
		t.Fatal(err)
	}
	if got := m.List(); len(got) != 1 || got[0] != "a" {
		t.Errorf("unexpected job list: %v", got)
	}
}

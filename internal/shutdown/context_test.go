package shutdown

import (
	"context"
	"syscall"
	"testing"
	"time"
)

func TestInterruptContext(t *testing.T) {
	ctx, cancel := InterruptContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	cancel()
	<-ctx.Done()
}

func TestInterruptContextSignal(t *testing.T) {
	ctx, cancel := InterruptContext(context.Background(), syscall.SIGUSR1)
	defer cancel()

	time.Sleep(10 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("kill: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled by signal")
	}
}

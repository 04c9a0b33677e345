package testutil

import (
	"context"
	"testing"
	"time"
)

// ContextWithTimeout returns a context that expires after duration and is
// canceled when the test ends.
func ContextWithTimeout(t testing.TB, duration time.Duration) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	t.Cleanup(cancel)

	return ctx
}

// RunUntilCancel runs fn in a goroutine with a cancelable context and returns
// a stop function that cancels it and waits for fn to return its error.
func RunUntilCancel(t testing.TB, fn func(ctx context.Context) error) (stop func() error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("goroutine did not stop after cancel")
			return nil
		}
	}
}

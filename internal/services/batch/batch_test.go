package batch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestRunner_ErrorIsolation(t *testing.T) {
	r := New(0)

	var processed []int
	errs, err := r.Run(context.Background(), 4,
		func(i int) string { return fmt.Sprintf("item-%d", i) },
		func(ctx context.Context, i int) error {
			processed = append(processed, i)
			if i == 1 {
				return errors.New("boom")
			}
			return nil
		})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3}, processed)
	require.Len(t, errs, 1)
	require.Equal(t, "item-1", errs[0].Ref)
}

func TestRunner_DelayBetweenItems(t *testing.T) {
	r := New(20 * time.Millisecond)

	start := time.Now()
	_, err := r.Run(context.Background(), 3,
		func(i int) string { return "" },
		func(ctx context.Context, i int) error { return nil })
	require.NoError(t, err)
	// Две паузы между тремя элементами.
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestRunner_ContextCancelStopsBetweenItems(t *testing.T) {
	r := New(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	var processed int
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := r.Run(ctx, 5,
			func(i int) string { return "" },
			func(ctx context.Context, i int) error {
				processed++
				return nil
			})
		require.ErrorIs(t, err, context.Canceled)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done
	require.Equal(t, 1, processed)
}

package fake

import (
	"context"
	"testing"

	"github.com/parcelbay/reconbox/internal/status"
	"github.com/stretchr/testify/require"
)

func TestFakeClient_FetchTrackingStatus(t *testing.T) {
	c := New()
	// Разные ref дают разные формы ответа, но все должны извлекаться.
	for _, ref := range []string{"AWB1", "AWB2", "AWB3", "AWB4", "AWB5", "AWB6"} {
		raw, err := c.FetchTrackingStatus(context.Background(), ref)
		require.NoError(t, err)

		ext, ok := status.Extract(raw)
		require.True(t, ok, "ref %s: %s", ref, string(raw))
		require.NotEmpty(t, ext.RawStatus)
	}
}

func TestFakeClient_Deterministic(t *testing.T) {
	c := New()
	a, err := c.FetchTrackingStatus(context.Background(), "AWB1")
	require.NoError(t, err)
	b, err := c.FetchTrackingStatus(context.Background(), "AWB1")
	require.NoError(t, err)
	require.JSONEq(t, string(a), string(b))
}

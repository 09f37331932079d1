package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestEncodeDecode_PreservesVariant(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		cmd   domain.Command
		topic domain.Topic
	}{
		{
			name:  "order command",
			cmd:   domain.OrderCommand{Op: domain.OrderOpConfirm, OrderID: "o1", ActorID: "admin", RequestedAt: now},
			topic: domain.TopicOrder,
		},
		{
			name:  "cart command",
			cmd:   domain.CartCommand{Op: domain.CartOpAdd, UserID: "u1", ProductID: "p1", Qty: 2},
			topic: domain.TopicCart,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.cmd, now)
			require.NoError(t, err)

			decoded, env, err := Decode(data)
			require.NoError(t, err)
			require.Equal(t, tt.cmd, decoded)
			require.Equal(t, tt.topic, env.Topic)
			require.Equal(t, tt.cmd.Key(), env.Key)
			require.True(t, env.PublishedAt.Equal(now))
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	_, _, err := Decode([]byte("{"))
	require.ErrorIs(t, err, ErrMalformedEnvelope)
	require.True(t, IsPermanent(err))

	_, _, err = Decode([]byte(`{"kind":"wishlist","payload":{}}`))
	require.ErrorIs(t, err, domain.ErrUnknownCommand)
	require.True(t, IsPermanent(err))

	_, _, err = Decode([]byte(`{"kind":"order","payload":"oops"}`))
	require.True(t, errors.Is(err, ErrMalformedEnvelope))
}

func TestRetryConfig_Delay(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, BackoffFactor: 2}

	require.Equal(t, 100*time.Millisecond, cfg.Delay(1))
	require.Equal(t, 200*time.Millisecond, cfg.Delay(2))
	require.Equal(t, 300*time.Millisecond, cfg.Delay(3))
	require.Equal(t, 300*time.Millisecond, cfg.Delay(10))

	normalized := RetryConfig{}.normalized()
	require.Equal(t, DefaultRetryConfig().MaxAttempts, normalized.MaxAttempts)
	require.Equal(t, 2.0, normalized.BackoffFactor)
}

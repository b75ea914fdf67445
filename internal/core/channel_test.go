package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_ReceiveMessage(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	ch := Channel{ID: "ch-1", Status: ChannelCreated, Token: "secret", MessageNumber: NoMessage}

	got, err := ch.ReceiveMessage(Notification{ChannelID: "ch-1", Token: "secret", MessageNumber: 4}, now)
	require.NoError(t, err)
	assert.Equal(t, ChannelSyncing, got.Status)
	assert.Equal(t, int64(4), got.MessageNumber)
	assert.Equal(t, now, got.UpdatedAt)

	got, err = got.ReceiveMessage(Notification{ChannelID: "ch-1", Token: "secret", MessageNumber: NoMessage}, now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.MessageNumber, "unnumbered deliveries keep the last number")
}

func TestChannel_ReceiveMessageRejects(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		channel Channel
		token   string
		wantErr error
	}{
		{
			name:    "wrong token",
			channel: Channel{ID: "ch-1", Status: ChannelSyncing, Token: "secret", MessageNumber: 2},
			token:   "guess",
			wantErr: ErrTokenMismatch,
		},
		{
			name:    "closed channel",
			channel: Channel{ID: "ch-1", Status: ChannelClosed, Token: "secret", MessageNumber: 2},
			token:   "secret",
			wantErr: ErrChannelClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.channel.ReceiveMessage(Notification{ChannelID: "ch-1", Token: tt.token, MessageNumber: 9}, now)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.channel, got)
		})
	}
}

func TestChannel_Close(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	ch := Channel{ID: "ch-1", Status: ChannelSyncing}

	closed := ch.Close(now)

	assert.False(t, closed.Live())
	assert.True(t, ch.Live())
	assert.Equal(t, "ch-1", closed.Subscription().ChannelID)
}

package core

import (
	"crypto/subtle"
	"errors"
	"time"
)

var (
	// ErrChannelClosed is returned when a closed channel receives a message.
	ErrChannelClosed = errors.New("channel is closed")
	// ErrTokenMismatch is returned when a notification carries the wrong token.
	ErrTokenMismatch = errors.New("channel token mismatch")
	// ErrChannelInvariant is returned for a calendar channel without a calendar id.
	ErrChannelInvariant = errors.New("channel invariant violated")
)

// ChannelStatus is the lifecycle state of a push channel.
type ChannelStatus string

const (
	ChannelCreated ChannelStatus = "CREATED"
	ChannelSyncing ChannelStatus = "SYNCING"
	ChannelClosed  ChannelStatus = "CLOSED"
)

// NoMessage is the MessageNumber of a channel that has not been notified yet.
const NoMessage int64 = -1

// Channel is a provider-side webhook subscription plus the secret needed to
// validate and route its notifications.
type Channel struct {
	ID           string
	AccountID    string
	Status       ChannelStatus
	ResourceType ResourceType
	// Calendar id; empty for account-level resources.
	ResourceID         string
	Token              string
	ExternalResourceID string
	ExpiresAt          time.Time
	MessageNumber      int64
	UpdatedAt          time.Time
}

// Notification is one inbound webhook delivery.
type Notification struct {
	ChannelID     string
	Token         string
	ResourceID    string
	ResourceState string
	// NoMessage when the provider does not number its deliveries.
	MessageNumber int64
}

// Live reports whether the channel may still receive messages.
func (c Channel) Live() bool {
	return c.Status != ChannelClosed
}

// ReceiveMessage validates n and returns the channel moved to SYNCING with the
// message number recorded. The receiver is left untouched on error.
func (c Channel) ReceiveMessage(n Notification, now time.Time) (Channel, error) {
	if subtle.ConstantTimeCompare([]byte(c.Token), []byte(n.Token)) != 1 {
		return c, ErrTokenMismatch
	}
	if c.Status == ChannelClosed {
		return c, ErrChannelClosed
	}
	c.Status = ChannelSyncing
	if n.MessageNumber != NoMessage {
		c.MessageNumber = n.MessageNumber
	}
	c.UpdatedAt = now
	return c, nil
}

// Close marks the channel closed. Closed channels stay closed.
func (c Channel) Close(now time.Time) Channel {
	c.Status = ChannelClosed
	c.UpdatedAt = now
	return c
}

// Subscription returns the provider handle used to stop the channel.
func (c Channel) Subscription() Subscription {
	return Subscription{
		ChannelID:          c.ID,
		Token:              c.Token,
		ExternalResourceID: c.ExternalResourceID,
		ExpiresAt:          c.ExpiresAt,
	}
}

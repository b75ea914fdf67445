// Package coretest holds test doubles for the core ports.
package coretest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/theakshaypant/calmirror/internal/core"
)

var _ core.Provider = (*MockProvider)(nil)

// MockProvider implements core.Provider for testing.
type MockProvider struct {
	mock.Mock
}

// ID implements core.Provider
func (m *MockProvider) ID() string {
	return "mock"
}

// ListCalendars implements core.Provider
func (m *MockProvider) ListCalendars(ctx context.Context, req core.CalendarListRequest) (core.CalendarListPage, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(core.CalendarListPage), args.Error(1)
}

// ListEvents implements core.Provider
func (m *MockProvider) ListEvents(ctx context.Context, req core.EventsRequest) (core.EventsPage, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(core.EventsPage), args.Error(1)
}

// OpenSubscription implements core.Provider
// The first return value may be a func(core.SubscriptionRequest) core.Subscription to
// echo values chosen by the caller.
func (m *MockProvider) OpenSubscription(ctx context.Context, req core.SubscriptionRequest) (core.Subscription, error) {
	args := m.Called(ctx, req)
	if fn, ok := args.Get(0).(func(core.SubscriptionRequest) core.Subscription); ok {
		return fn(req), args.Error(1)
	}
	return args.Get(0).(core.Subscription), args.Error(1)
}

// CloseSubscription implements core.Provider
func (m *MockProvider) CloseSubscription(ctx context.Context, sub core.Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

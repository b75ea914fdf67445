package outlook

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/microsoftgraph/msgraph-sdk-go/models"

	"github.com/theakshaypant/calmirror/internal/core"
)

// maxSubscriptionTTL is the longest lifetime Graph grants event subscriptions.
const maxSubscriptionTTL = 4230 * time.Minute

// OpenSubscription creates a Graph change subscription. Graph picks the
// subscription id itself, so the channel id travels in the notification URL
// and is read back from the created subscription.
func (a *Adapter) OpenSubscription(ctx context.Context, req core.SubscriptionRequest) (core.Subscription, error) {
	op := fmt.Sprintf("subscribe %s %s", req.ResourceType, req.ResourceID)
	resource, err := subscriptionResource(req.ResourceType, req.ResourceID)
	if err != nil {
		return core.Subscription{}, fmt.Errorf("%s: %w", op, err)
	}
	notificationURL, err := withChannel(req.CallbackURL, req.ChannelID)
	if err != nil {
		return core.Subscription{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return core.Subscription{}, classify(op, err)
	}

	changeType := "created,updated,deleted"
	expires := a.now().Add(clampTTL(req.TTL)).UTC()

	body := models.NewSubscription()
	body.SetChangeType(&changeType)
	body.SetNotificationUrl(&notificationURL)
	body.SetResource(&resource)
	body.SetExpirationDateTime(&expires)
	body.SetClientState(&req.Token)

	created, err := a.client.Subscriptions().Post(ctx, body, nil)
	if err != nil {
		return core.Subscription{}, classify(op, err)
	}

	sub := core.Subscription{
		ChannelID:          channelFromURL(derefStr(created.GetNotificationUrl())),
		Token:              derefStr(created.GetClientState()),
		ExternalResourceID: derefStr(created.GetId()),
		ExpiresAt:          expires,
	}
	if exp := created.GetExpirationDateTime(); exp != nil {
		sub.ExpiresAt = exp.UTC()
	}
	return sub, nil
}

// CloseSubscription deletes the Graph subscription. Expired subscriptions
// are gone already, so a 404 counts as closed.
func (a *Adapter) CloseSubscription(ctx context.Context, sub core.Subscription) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return classify("delete subscription", err)
	}
	err := a.client.Subscriptions().BySubscriptionId(sub.ExternalResourceID).Delete(ctx, nil)
	if err != nil && statusCode(err) != 404 {
		return classify("delete subscription "+sub.ExternalResourceID, err)
	}
	return nil
}

// subscriptionResource names the Graph resource to watch. Graph cannot watch
// the calendar collection, so list channels watch every event of the
// mailbox: new calendars surface once something is scheduled in them.
func subscriptionResource(rt core.ResourceType, calendarID string) (string, error) {
	switch rt {
	case core.ResourceCalendarList:
		return "me/events", nil
	case core.ResourceCalendar:
		if calendarID == "" {
			return "", core.ErrChannelInvariant
		}
		return "me/calendars/" + calendarID + "/events", nil
	default:
		return "", fmt.Errorf("unsupported resource type %q", rt)
	}
}

func withChannel(callback, channelID string) (string, error) {
	u, err := url.Parse(callback)
	if err != nil {
		return "", fmt.Errorf("parse callback url: %w", err)
	}
	q := u.Query()
	q.Set("channel", channelID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func channelFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Query().Get("channel")
}

func clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > maxSubscriptionTTL {
		return maxSubscriptionTTL
	}
	return ttl
}

package remote

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

type NotificationClient struct{ c *resty.Client }

func NewNotificationClient(c *resty.Client) *NotificationClient { return &NotificationClient{c: c} }

func (n *NotificationClient) ResyncNotifications(ctx context.Context) error {
	resp, err := n.c.R().
		SetContext(ctx).
		SetError(&apiError{}).
		Post("/api/v1/notifications/sync")
	if err := check(resp, err); err != nil {
		return fmt.Errorf("resync notifications: %w", err)
	}
	return nil
}

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-fcm-dispatch/internal/channel"
	"github.com/tinywideclouds/go-fcm-dispatch/pkg/push"
)

// NotificationSpec is the structured content of a DispatchRequest.
type NotificationSpec struct {
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	ClickAction string         `json:"click_action,omitempty"`
	Image       string         `json:"image,omitempty"`
	Icon        string         `json:"icon,omitempty"`
	Color       string         `json:"color,omitempty"`
	Sound       string         `json:"sound,omitempty"`
	Priority    push.Priority  `json:"priority,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Topics      []string       `json:"topics,omitempty"`
}

// DispatchRequest asks for one notification to be sent to one user. Exactly
// one of Notification and Raw is set.
type DispatchRequest struct {
	RecipientID  urn.URN
	Notification *NotificationSpec
	Raw          push.RawPayload
}

type dispatchRequestJSON struct {
	RecipientID  string            `json:"recipient_id"`
	Notification *NotificationSpec `json:"notification,omitempty"`
	Raw          push.RawPayload   `json:"raw,omitempty"`
}

func (r *DispatchRequest) UnmarshalJSON(b []byte) error {
	var wire dispatchRequestJSON
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	if wire.RecipientID == "" {
		return errors.New("recipient_id is required")
	}
	recipient, err := urn.Parse(wire.RecipientID)
	if err != nil {
		return fmt.Errorf("invalid recipient_id: %w", err)
	}
	switch {
	case wire.Notification == nil && len(wire.Raw) == 0:
		return errors.New("one of notification or raw is required")
	case wire.Notification != nil && len(wire.Raw) > 0:
		return errors.New("notification and raw are mutually exclusive")
	}

	*r = DispatchRequest{
		RecipientID:  recipient,
		Notification: wire.Notification,
		Raw:          wire.Raw,
	}
	return nil
}

func (r DispatchRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(dispatchRequestJSON{
		RecipientID:  r.RecipientID.String(),
		Notification: r.Notification,
		Raw:          r.Raw,
	})
}

// ToFCM renders the request for the FCM channel.
func (r *DispatchRequest) ToFCM(_ context.Context, _ channel.Recipient) push.Rendered {
	if len(r.Raw) > 0 {
		return push.RawRendered(r.Raw)
	}
	if r.Notification == nil {
		return push.Rendered{}
	}
	n := r.Notification
	return push.StructuredRendered(&push.FCMMessage{
		Title:       n.Title,
		Body:        n.Body,
		ClickAction: n.ClickAction,
		Image:       n.Image,
		Icon:        n.Icon,
		Color:       n.Color,
		Sound:       n.Sound,
		Priority:    n.Priority,
		Data:        n.Data,
		Topics:      n.Topics,
	})
}

package push

import (
	"maps"
	"net/url"
)

// Render builds the wire envelope for one delivery target. It does not
// modify msg.
//
// The same fields are written into several platform blocks because each
// client runtime only reads its own block.
func Render(msg Message, target Target) Envelope {
	sound := msg.sound()

	wm := WireMessage{
		Notification: Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Android: AndroidConfig{
			Priority: msg.priority(),
			Notification: AndroidNotification{
				Icon:  msg.Icon,
				Color: msg.Color,
				Image: msg.Image,
				Sound: sound,
			},
		},
		APNS: APNSConfig{
			Payload: APNSPayload{
				Aps: Aps{
					ContentAvailable: 1,
					MutableContent:   1,
					Sound:            sound,
				},
			},
			FCMOptions: APNSFCMOptions{Image: msg.Image},
		},
		Webpush: WebpushConfig{
			Notification: WebpushNotification{
				Title: msg.Title,
				Body:  msg.Body,
				Icon:  msg.Icon,
				Image: msg.Image,
				Sound: sound,
			},
		},
	}

	switch target.Kind {
	case TargetToken:
		wm.Token = target.Token
	case TargetTopic:
		wm.Topic = target.Topic
	case TargetCondition:
		wm.Condition = Condition(target.Topics)
	}

	if msg.ClickAction != "" {
		wm.Android.Notification.ClickAction = msg.ClickAction
		wm.APNS.Payload.Aps.Category = msg.ClickAction
		wm.Webpush.FCMOptions = &WebpushFCMOptions{Link: LinkFor(msg.ClickAction)}
	}

	if len(msg.Data) > 0 {
		wm.Data = maps.Clone(msg.Data)
		wm.Webpush.Data = maps.Clone(msg.Data)
	}

	return Envelope{Message: wm}
}

// LinkFor derives the web push link from a click action: the URL path as
// written, percent-encoding included, when there is one, otherwise the click
// action itself (e.g. "myapp://open").
func LinkFor(clickAction string) string {
	u, err := url.Parse(clickAction)
	if err != nil {
		return clickAction
	}
	if u.Opaque != "" {
		return u.Opaque
	}
	if u.Path == "" {
		return clickAction
	}
	return u.EscapedPath()
}

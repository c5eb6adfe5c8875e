package push

// Envelope is the body of a messages:send request.
type Envelope struct {
	Message WireMessage `json:"message"`
}

// WireMessage mirrors the HTTP v1 Message resource. Exactly one of Token,
// Topic and Condition is set.
type WireMessage struct {
	Token     string `json:"token,omitempty"`
	Topic     string `json:"topic,omitempty"`
	Condition string `json:"condition,omitempty"`

	Notification Notification      `json:"notification"`
	Android      AndroidConfig     `json:"android"`
	APNS         APNSConfig        `json:"apns"`
	Webpush      WebpushConfig     `json:"webpush"`
	Data         map[string]string `json:"data,omitempty"`
}

type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type AndroidConfig struct {
	Priority     Priority            `json:"priority"`
	Notification AndroidNotification `json:"notification"`
}

type AndroidNotification struct {
	Icon        string `json:"icon,omitempty"`
	Color       string `json:"color,omitempty"`
	Image       string `json:"image,omitempty"`
	Sound       string `json:"sound"`
	ClickAction string `json:"click_action,omitempty"`
}

type APNSConfig struct {
	Payload    APNSPayload    `json:"payload"`
	FCMOptions APNSFCMOptions `json:"fcm_options"`
}

type APNSPayload struct {
	Aps Aps `json:"aps"`
}

// Aps marks every message as content-available and mutable so the app
// extension can attach media.
type Aps struct {
	ContentAvailable int    `json:"content-available"`
	MutableContent   int    `json:"mutable-content"`
	Sound            string `json:"sound"`
	Category         string `json:"category,omitempty"`
}

type APNSFCMOptions struct {
	Image string `json:"image,omitempty"`
}

type WebpushConfig struct {
	Notification WebpushNotification `json:"notification"`
	FCMOptions   *WebpushFCMOptions  `json:"fcm_options,omitempty"`
	Data         map[string]string   `json:"data,omitempty"`
}

type WebpushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	Image string `json:"image,omitempty"`
	Sound string `json:"sound"`
}

type WebpushFCMOptions struct {
	Link string `json:"link"`
}

// Response is the decoded gateway reply. A successful send carries the
// message resource name under "name".
type Response map[string]any

// MessageID returns the "name" field, if any.
func (r Response) MessageID() (string, bool) {
	v, ok := r["name"]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return Stringify(v), true
	}
	return s, true
}

// ErrorDetail returns whatever the gateway put under "error".
func (r Response) ErrorDetail() any {
	if v, ok := r["error"]; ok && v != nil {
		return v
	}
	return "Unknown error"
}

package push

// FCMMessage is what an application notification renders to when it wants
// the fluent path: plain fields that the channel copies onto a fresh Builder.
type FCMMessage struct {
	Title       string
	Body        string
	ClickAction string
	Image       string
	Icon        string
	Color       string
	Sound       string
	Priority    Priority
	Data        map[string]any

	// Topics, when set, addresses the message to topics instead of the
	// recipient's device. One topic is sent as a topic, several as a condition.
	Topics []string
}

// NewFCMMessage starts a message with normal priority.
func NewFCMMessage(title, body string) *FCMMessage {
	return &FCMMessage{Title: title, Body: body, Priority: PriorityNormal}
}

// HighPriority sets android priority to high.
func (m *FCMMessage) HighPriority() *FCMMessage {
	m.Priority = PriorityHigh
	return m
}

// Builder copies the fields onto a fresh builder.
func (m *FCMMessage) Builder() *Builder {
	b := NewBuilder().
		WithTitle(m.Title).
		WithBody(m.Body).
		WithAdditionalData(m.Data).
		WithSound(m.Sound).
		WithImage(m.Image).
		WithIcon(m.Icon).
		WithColor(m.Color).
		WithClickAction(m.ClickAction)
	if m.Priority != "" {
		b.WithPriority(m.Priority)
	}
	switch len(m.Topics) {
	case 0:
	case 1:
		b.WithTopic(m.Topics[0])
	default:
		b.WithTopics(m.Topics...)
	}
	return b
}

// RenderedKind tags the two shapes a notification can render to.
type RenderedKind int

const (
	RenderedNone RenderedKind = iota
	RenderedRaw
	RenderedStructured
)

// Rendered is a tagged union of a raw document and a structured message.
type Rendered struct {
	Kind       RenderedKind
	Raw        RawPayload
	Structured *FCMMessage
}

func RawRendered(raw RawPayload) Rendered {
	return Rendered{Kind: RenderedRaw, Raw: raw}
}

func StructuredRendered(msg *FCMMessage) Rendered {
	return Rendered{Kind: RenderedStructured, Structured: msg}
}

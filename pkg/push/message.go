// Package push contains the message model, the FCM wire format and the pure
// renderer that turns one into the other.
package push

import "maps"

// Priority is the android delivery priority.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// DefaultSound is rendered into every platform block when no sound is set.
const DefaultSound = "default"

// RawPayload is an already gateway-shaped document, posted verbatim.
type RawPayload map[string]any

// Message is the abstract unit of content. Build one with a Builder; a built
// Message does not share maps or slices with the builder that produced it.
type Message struct {
	Title       string
	Body        string
	ClickAction string
	Image       string
	Icon        string
	Color       string
	Sound       string
	Priority    Priority
	Data        map[string]string

	// Topic and Topics are mutually exclusive; the builder keeps whichever
	// was set last.
	Topic  string
	Topics []string

	// Raw marks the message for raw pass-through. Fluent fields are ignored
	// when it is set.
	Raw RawPayload
}

// IsRaw reports whether the message should be dispatched verbatim.
func (m Message) IsRaw() bool {
	return m.Raw != nil
}

// TopicTarget resolves the declared topics into a delivery target.
func (m Message) TopicTarget() (Target, bool) {
	switch {
	case m.Topic != "":
		return TopicTarget(m.Topic), true
	case len(m.Topics) > 0:
		return ConditionTarget(m.Topics...), true
	default:
		return Target{}, false
	}
}

func (m Message) priority() Priority {
	if m.Priority == "" {
		return PriorityNormal
	}
	return m.Priority
}

func (m Message) sound() string {
	if m.Sound == "" {
		return DefaultSound
	}
	return m.Sound
}

// Builder collects message fields fluently. Setters only store values;
// validation happens at send time.
type Builder struct {
	msg Message
}

// NewBuilder returns an empty builder with normal priority.
func NewBuilder() *Builder {
	return &Builder{msg: Message{Priority: PriorityNormal}}
}

func (b *Builder) WithTitle(title string) *Builder {
	b.msg.Title = title
	return b
}

func (b *Builder) WithBody(body string) *Builder {
	b.msg.Body = body
	return b
}

func (b *Builder) WithClickAction(action string) *Builder {
	b.msg.ClickAction = action
	return b
}

func (b *Builder) WithImage(url string) *Builder {
	b.msg.Image = url
	return b
}

func (b *Builder) WithIcon(icon string) *Builder {
	b.msg.Icon = icon
	return b
}

// WithColor takes a #RRGGBB color for the android notification.
func (b *Builder) WithColor(color string) *Builder {
	b.msg.Color = color
	return b
}

func (b *Builder) WithSound(sound string) *Builder {
	b.msg.Sound = sound
	return b
}

func (b *Builder) WithPriority(p Priority) *Builder {
	b.msg.Priority = p
	return b
}

// WithAdditionalData replaces the data payload. Every value is converted
// with Stringify because the gateway only accepts string values.
func (b *Builder) WithAdditionalData(data map[string]any) *Builder {
	if len(data) == 0 {
		b.msg.Data = nil
		return b
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = Stringify(v)
	}
	b.msg.Data = out
	return b
}

// WithTopic addresses the message to a single topic.
func (b *Builder) WithTopic(topic string) *Builder {
	b.msg.Topic = topic
	b.msg.Topics = nil
	return b
}

// WithTopics addresses the message to every subscriber of any of the topics.
func (b *Builder) WithTopics(topics ...string) *Builder {
	b.msg.Topic = ""
	b.msg.Topics = append([]string(nil), topics...)
	return b
}

// FromRaw switches the message to raw pass-through.
func (b *Builder) FromRaw(raw RawPayload) *Builder {
	b.msg.Raw = raw
	return b
}

// Build returns an independent copy of the collected message.
func (b *Builder) Build() Message {
	m := b.msg
	if m.Data != nil {
		m.Data = maps.Clone(m.Data)
	}
	if m.Topics != nil {
		m.Topics = append([]string(nil), m.Topics...)
	}
	if m.Raw != nil {
		m.Raw = maps.Clone(m.Raw)
	}
	return m
}

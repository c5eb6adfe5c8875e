package push

import (
	"fmt"
	"strings"
)

// TargetKind discriminates the three delivery modes.
type TargetKind int

const (
	TargetToken TargetKind = iota + 1
	TargetTopic
	TargetCondition
)

func (k TargetKind) String() string {
	switch k {
	case TargetToken:
		return "token"
	case TargetTopic:
		return "topic"
	case TargetCondition:
		return "condition"
	default:
		return "none"
	}
}

// Target is exactly one of a device token, a topic or an OR-condition over
// topics. Use the constructors; the zero value addresses nobody.
type Target struct {
	Kind   TargetKind
	Token  string
	Topic  string
	Topics []string
}

func TokenTarget(token string) Target {
	return Target{Kind: TargetToken, Token: token}
}

func TopicTarget(topic string) Target {
	return Target{Kind: TargetTopic, Topic: topic}
}

func ConditionTarget(topics ...string) Target {
	return Target{Kind: TargetCondition, Topics: append([]string(nil), topics...)}
}

// Condition joins topics into the gateway's condition syntax, e.g.
// 'news' in topics || 'updates' in topics.
func Condition(topics []string) string {
	parts := make([]string, len(topics))
	for i, t := range topics {
		parts[i] = fmt.Sprintf("'%s' in topics", t)
	}
	return strings.Join(parts, " || ")
}

// String is used in log lines.
func (t Target) String() string {
	switch t.Kind {
	case TargetToken:
		return t.Token
	case TargetTopic:
		return t.Topic
	case TargetCondition:
		return strings.Join(t.Topics, ", ")
	default:
		return ""
	}
}

package push

import "fmt"

// NormalizeTokens accepts a single token or a slice of tokens. An empty
// result is not an error; the caller decides what nobody-to-send-to means.
func NormalizeTokens(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if t == "" {
			return nil, nil
		}
		return []string{t}, nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for i, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("%w: element %d is %T", ErrUnsupportedTokenFormat, i, e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrUnsupportedTokenFormat, v)
	}
}

// NormalizeTopics turns a single topic into a Topic target and a slice into
// a Condition target. A Topic or Condition Target passes through unchanged.
// ok is false when there is nothing to address.
func NormalizeTopics(v any) (target Target, ok bool, err error) {
	switch t := v.(type) {
	case nil:
		return Target{}, false, nil
	case Target:
		switch t.Kind {
		case TargetTopic, TargetCondition:
			return t, true, nil
		case TargetToken:
			return Target{}, false, fmt.Errorf("%w: a token target is not a topic", ErrInvalidInput)
		default:
			return Target{}, false, nil
		}
	case string:
		if t == "" {
			return Target{}, false, nil
		}
		return TopicTarget(t), true, nil
	case []string:
		if len(t) == 0 {
			return Target{}, false, nil
		}
		return ConditionTarget(t...), true, nil
	default:
		return Target{}, false, fmt.Errorf("%w: unsupported topics argument %T", ErrInvalidInput, v)
	}
}

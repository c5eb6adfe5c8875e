package push

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Stringify converts a data value to the string form sent on the wire.
//
// Booleans follow the "1"/"" convention of the HTTP v1 data payload clients
// this service was built for; composite values are JSON encoded.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		if t {
			return "1"
		}
		return ""
	case int:
		return strconv.Itoa(t)
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", t)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	case error:
		return t.Error()
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

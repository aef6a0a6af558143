// Package push implements the delivery pipeline: normalizing heterogeneous
// request fields into a canonical message, resolving device tokens, and
// fanning batches out into independent delivery attempts.
package push

import (
	"strings"

	"github.com/tinywideclouds/go-push-gateway/internal/apns"
)

// Message is the canonical push request. It is built once per delivery
// attempt and not mutated afterwards except for the resolved device token.
type Message struct {
	ID          string
	DeviceKey   string
	DeviceToken string
	Title       string
	Subtitle    string
	Body        string
	Sound       string

	// Params is the extension bag: every field outside the recognized set,
	// keyed by its lower-cased name.
	Params map[string]any
}

// FromParams normalizes a merged parameter map into a Message. Field names
// are matched case-insensitively against the recognized set; everything else
// lands in the extension bag. Nested maps are merged in one level deep.
// Nothing is mandatory here; validation happens at delivery time.
func FromParams(params map[string]any) *Message {
	msg := &Message{
		Sound:  apns.DefaultSound,
		Params: make(map[string]any),
	}

	for key, val := range params {
		lower := strings.ToLower(key)

		switch v := val.(type) {
		case string:
			switch lower {
			case "id":
				msg.ID = v
				msg.Params["id"] = v
			case "device_key":
				msg.DeviceKey = v
			case "title":
				msg.Title = v
			case "subtitle":
				msg.Subtitle = v
			case "body":
				msg.Body = v
			case "sound":
				msg.Sound = apns.NormalizeSound(v)
			default:
				msg.Params[lower] = v
			}
		case map[string]any:
			// One level of merge; deeper nesting is carried as-is.
			for k, nested := range v {
				msg.Params[k] = nested
			}
		default:
			// Numbers, booleans, arrays.
			msg.Params[lower] = val
		}
	}

	return msg
}

// IsEmptyAlert reports whether the message carries no visible alert content.
func (m *Message) IsEmptyAlert() bool {
	return m.Title == "" && m.Subtitle == "" && m.Body == ""
}

// IsDeletePush reports whether the extension bag carries a truthy delete
// flag, which selects the silent delivery mode.
func (m *Message) IsDeletePush() bool {
	switch v := m.Params["delete"].(type) {
	case string:
		return v == "1"
	case bool:
		return v
	case int:
		return v == 1
	case float64:
		return v == 1
	default:
		return false
	}
}

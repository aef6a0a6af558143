package apns

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MaximumPayloadSize is the upper bound APNs enforces on the serialized
// notification body.
const MaximumPayloadSize = 4096

// DefaultSound is the sound played when the caller did not pick one.
const DefaultSound = "1107"

// notificationCategory is the fixed category the client app registers its
// actions under.
const notificationCategory = "myNotificationCategory"

// interruptionLevels is the closed set accepted by iOS 15+.
var interruptionLevels = map[string]bool{
	"passive":        true,
	"active":         true,
	"time-sensitive": true,
	"critical":       true,
}

// NormalizeSound appends the .caf suffix when missing. Empty input falls back
// to the default sound. Idempotent.
func NormalizeSound(sound string) string {
	if sound == "" {
		return DefaultSound + ".caf"
	}
	if strings.HasSuffix(sound, ".caf") {
		return sound
	}
	return sound + ".caf"
}

// Payload assembles the APNs notification body: the reserved "aps" object
// plus arbitrary caller keys beside it.
type Payload struct {
	aps    map[string]any
	custom map[string]any
}

func NewPayload() *Payload {
	return &Payload{
		aps:    make(map[string]any),
		custom: make(map[string]any),
	}
}

func (p *Payload) alert() map[string]any {
	a, ok := p.aps["alert"].(map[string]any)
	if !ok {
		a = make(map[string]any)
		p.aps["alert"] = a
	}
	return a
}

func (p *Payload) AlertTitle(title string) *Payload {
	p.alert()["title"] = title
	return p
}

func (p *Payload) AlertSubtitle(subtitle string) *Payload {
	p.alert()["subtitle"] = subtitle
	return p
}

func (p *Payload) AlertBody(body string) *Payload {
	p.alert()["body"] = body
	return p
}

// Sound sets the notification sound, normalizing the .caf suffix.
func (p *Payload) Sound(sound string) *Payload {
	p.aps["sound"] = NormalizeSound(sound)
	return p
}

func (p *Payload) Badge(badge int) *Payload {
	p.aps["badge"] = badge
	return p
}

// ThreadID groups notifications in the notification center.
func (p *Payload) ThreadID(threadID string) *Payload {
	p.aps["thread-id"] = threadID
	return p
}

func (p *Payload) Category(category string) *Payload {
	p.aps["category"] = category
	return p
}

// MutableContent lets the notification service extension rewrite the
// notification before display.
func (p *Payload) MutableContent() *Payload {
	p.aps["mutable-content"] = 1
	return p
}

// ContentAvailable marks the notification as a background delivery.
func (p *Payload) ContentAvailable() *Payload {
	p.aps["content-available"] = 1
	return p
}

// InterruptionLevel sets the iOS 15+ interruption level. Values outside the
// enumerated set are ignored.
func (p *Payload) InterruptionLevel(level string) *Payload {
	if interruptionLevels[level] {
		p.aps["interruption-level"] = level
	}
	return p
}

// RelevanceScore clamps the score into [0, 1].
func (p *Payload) RelevanceScore(score float64) *Payload {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	p.aps["relevance-score"] = score
	return p
}

// Custom adds a caller-supplied top-level key. The reserved "aps" key is
// never writable through here.
func (p *Payload) Custom(key string, value any) error {
	if key == "aps" {
		return fmt.Errorf("apns: custom key %q collides with the reserved payload key", key)
	}
	p.custom[key] = value
	return nil
}

// MarshalJSON flattens the custom keys beside the reserved aps object.
func (p *Payload) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(p.custom)+1)
	for k, v := range p.custom {
		body[k] = v
	}
	body["aps"] = p.aps
	return json.Marshal(body)
}

// Size returns the serialized byte length.
func (p *Payload) Size() int {
	data, err := json.Marshal(p)
	if err != nil {
		return 0
	}
	return len(data)
}

// IsOversize reports whether the serialized payload exceeds the APNs bound.
// Delivery is not blocked on this; callers may check before sending.
func (p *Payload) IsOversize() bool {
	return p.Size() > MaximumPayloadSize
}

// BuildAlert assembles the standard alert payload. The caller must have
// substituted a non-empty body beforehand; APNs rejects empty alerts.
// Extension params feed thread-id (group), interruption level (level) and
// badge, and every param is copied in as a custom key with its value coerced
// to text.
func BuildAlert(title, subtitle, body, sound string, params map[string]any) *Payload {
	p := NewPayload().
		MutableContent().
		AlertBody(body).
		Sound(sound).
		Category(notificationCategory)

	if title != "" {
		p.AlertTitle(title)
	}
	if subtitle != "" {
		p.AlertSubtitle(subtitle)
	}

	if group, ok := params["group"]; ok {
		p.ThreadID(fmt.Sprint(group))
	}
	if level, ok := params["level"]; ok {
		p.InterruptionLevel(strings.ToLower(fmt.Sprint(level)))
	}
	if raw, ok := params["badge"]; ok {
		if badge, err := strconv.Atoi(fmt.Sprint(raw)); err == nil {
			p.Badge(badge)
		}
	}

	copyParams(p, params)
	return p
}

// BuildSilent assembles the background payload used for delete pushes: no
// alert object, content-available set, params carried as custom keys.
func BuildSilent(params map[string]any) *Payload {
	p := NewPayload().MutableContent().ContentAvailable()
	copyParams(p, params)
	return p
}

func copyParams(p *Payload, params map[string]any) {
	for key, value := range params {
		// Ignoring the error: the only rejected key is "aps" and a caller
		// param named aps must not clobber the reserved object.
		_ = p.Custom(strings.ToLower(key), fmt.Sprint(value))
	}
}

// Package capture is the boundary where raw SMS notifications enter the
// system. It normalizes payloads, hands every message to the relay and, when
// the application is listening, to live subscribers.
package capture

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/smart-captures/internal/model"
)

// Field aliases seen on different delivery paths, in lookup order.
var (
	bodyFields      = []string{"body", "messageBody"}
	senderFields    = []string{"originatingAddress", "sender", "address"}
	timestampFields = []string{"timestamp", "timeStamp", "date"}
)

// Normalize converts a delivery payload into a RawMessage. It reports false
// when the payload has no body. Timestamps are Unix milliseconds given as a
// number or numeric string; a missing or unusable timestamp becomes now.
func Normalize(payload map[string]any, now time.Time) (model.RawMessage, bool) {
	msg := model.RawMessage{
		Body:   firstString(payload, bodyFields),
		Sender: firstString(payload, senderFields),
	}
	if !msg.HasBody() {
		return model.RawMessage{}, false
	}

	msg.ObservedAt = now.UTC()
	for _, field := range timestampFields {
		if millis, ok := toMillis(payload[field]); ok {
			msg.ObservedAt = time.UnixMilli(millis).UTC()
			break
		}
	}
	return msg, true
}

func firstString(payload map[string]any, fields []string) string {
	for _, field := range fields {
		if s, ok := payload[field].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func toMillis(v any) (int64, bool) {
	var millis int64
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		millis = int64(t)
	case int64:
		millis = t
	case int:
		millis = int64(t)
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil {
				return 0, false
			}
			n = int64(f)
		}
		millis = n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		millis = n
	default:
		return 0, false
	}
	return millis, millis > 0
}

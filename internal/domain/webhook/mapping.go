package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// eventTypeTable maps normalized provider event names to canonical types.
// Keys are lower case with "_" and "-" replaced by ".".
var eventTypeTable = map[string]CanonicalType{
	"connection.attempted":    TypeAttempted,
	"connection.initiated":    TypeAttempted,
	"authorization.attempted": TypeAttempted,

	"connection.added":      TypeAdded,
	"connection.created":    TypeAdded,
	"authorization.created": TypeAdded,

	"connection.updated":    TypeUpdated,
	"connection.synced":     TypeUpdated,
	"authorization.updated": TypeUpdated,

	"connection.broken":      TypeBroken,
	"connection.error":       TypeBroken,
	"connection.disabled":    TypeBroken,
	"authorization.expired":  TypeBroken,
	"authorization.disabled": TypeBroken,

	"connection.fixed":      TypeFixed,
	"connection.repaired":   TypeFixed,
	"connection.reenabled":  TypeFixed,
	"authorization.renewed": TypeFixed,

	"connection.deleted":    TypeDeleted,
	"connection.removed":    TypeDeleted,
	"authorization.revoked": TypeDeleted,
}

// MapType returns the canonical type for a provider event name, or TypeUnknown.
func MapType(providerType string) CanonicalType {
	key := strings.ToLower(strings.TrimSpace(providerType))
	key = strings.NewReplacer("_", ".", "-", ".").Replace(key)
	if t, ok := eventTypeTable[key]; ok {
		return t
	}
	return TypeUnknown
}

var (
	idKeys          = []string{"id", "event_id", "eventId"}
	typeKeys        = []string{"type", "event_type", "eventType", "event"}
	createdKeys     = []string{"created_at", "createdAt", "timestamp"}
	userKeys        = []string{"user_id", "userId"}
	authKeys        = []string{"authorization_id", "authorizationId", "connection_id", "connectionId"}
	institutionKeys = []string{"institution_name", "institutionName", "institution"}
)

// Parse decodes a raw delivery into a CanonicalEvent. Owner resolution
// happens later; UserID is left zero.
func Parse(provider string, body []byte) (*CanonicalEvent, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw == nil {
		return nil, ErrMalformedPayload
	}

	ev := &CanonicalEvent{
		Provider:        provider,
		EventID:         take(raw, idKeys),
		ProviderType:    take(raw, typeKeys),
		ProviderUserID:  take(raw, userKeys),
		AuthorizationID: take(raw, authKeys),
		InstitutionName: take(raw, institutionKeys),
	}
	if ev.ProviderType == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformedPayload)
	}
	ev.Type = MapType(ev.ProviderType)

	if ts := take(raw, createdKeys); ts != "" {
		ev.CreatedAt = parseTime(ts)
	}
	if ev.EventID == "" {
		sum := sha256.Sum256(body)
		ev.EventID = "sha256:" + hex.EncodeToString(sum[:])
	}
	if len(raw) > 0 {
		ev.Details = raw
	}

	return ev, nil
}

// take removes the first present key from m and returns it as a string.
func take(m map[string]any, keys []string) string {
	var out string
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		delete(m, k)
		if out != "" {
			continue
		}
		switch val := v.(type) {
		case string:
			out = strings.TrimSpace(val)
		case float64:
			out = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out = strconv.FormatBool(val)
		}
	}
	return out
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}
	return time.Time{}
}

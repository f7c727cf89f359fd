package webhook

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapType(t *testing.T) {
	tests := map[string]CanonicalType{
		"connection.added":       TypeAdded,
		"CONNECTION_ADDED":       TypeAdded,
		" Connection-Updated ":   TypeUpdated,
		"authorization.expired":  TypeBroken,
		"connection.repaired":    TypeFixed,
		"CONNECTION_DELETED":     TypeDeleted,
		"connection.attempted":   TypeAttempted,
		"transactions.available": TypeUnknown,
		"":                       TypeUnknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, MapType(in), in)
	}
}

func TestParse(t *testing.T) {
	body := []byte(`{"id":"evt-1","type":"connection.broken","created_at":"2026-03-01T10:00:00Z","user_id":"ident-1","authorization_id":"auth-1","reason":"password changed"}`)

	ev, err := Parse("brokeragex", body)

	require.NoError(t, err)
	assert.Equal(t, "evt-1", ev.EventID)
	assert.Equal(t, TypeBroken, ev.Type)
	assert.Equal(t, "connection.broken", ev.ProviderType)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), ev.CreatedAt.UTC())
	assert.Equal(t, "ident-1", ev.ProviderUserID)
	assert.Equal(t, "auth-1", ev.AuthorizationID)
	assert.Equal(t, map[string]any{"reason": "password changed"}, ev.Details)
	assert.Zero(t, ev.UserID)
}

func TestParse_CamelCaseAndNumericFields(t *testing.T) {
	ev, err := Parse("bankco", []byte(`{"eventType":"CONNECTION_FIXED","userId":42,"authorizationId":"a-9","createdAt":"1767225600"}`))

	require.NoError(t, err)
	assert.Equal(t, TypeFixed, ev.Type)
	assert.Equal(t, "42", ev.ProviderUserID)
	assert.Equal(t, "a-9", ev.AuthorizationID)
	assert.Equal(t, int64(1767225600), ev.CreatedAt.Unix())
	assert.Nil(t, ev.Details)
}

func TestParse_MissingIDUsesBodyHash(t *testing.T) {
	body := []byte(`{"type":"connection.updated"}`)

	a, err := Parse("p", body)
	require.NoError(t, err)
	b, err := Parse("p", body)
	require.NoError(t, err)

	assert.Equal(t, a.EventID, b.EventID)
	assert.Contains(t, a.EventID, "sha256:")
}

func TestHMACVerifier(t *testing.T) {
	v := NewHMACVerifier("secret", "")
	body := []byte(`{"id":"1"}`)
	sig := v.Sign(body)

	h := http.Header{}
	h.Set(DefaultSignatureHeader, sig)
	assert.NoError(t, v.Verify(h, body))

	h.Set(DefaultSignatureHeader, sig)
	assert.ErrorIs(t, v.Verify(h, []byte(`{"id":"2"}`)), ErrInvalidSignature)

	assert.ErrorIs(t, v.Verify(http.Header{}, body), ErrInvalidSignature)
}

func TestNewVerifier(t *testing.T) {
	_, err := NewVerifier(SchemeNone, "", "", false)
	assert.ErrorIs(t, err, ErrNoVerifier)

	_, err = NewVerifier("", "", "", false)
	assert.ErrorIs(t, err, ErrNoVerifier)

	v, err := NewVerifier(SchemeNone, "", "", true)
	require.NoError(t, err)
	assert.NoError(t, v.Verify(nil, nil))

	_, err = NewVerifier(SchemeHMACSHA256, "", "", false)
	assert.Error(t, err)

	_, err = NewVerifier("rsa-sha512", "k", "", false)
	assert.Error(t, err)

	v, err = NewVerifier("HMAC-SHA256", "k", "X-Sig", false)
	require.NoError(t, err)
	assert.IsType(t, &HMACVerifier{}, v)
}

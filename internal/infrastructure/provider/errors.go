package provider

import (
	"encoding/json"
	"strings"

	"brokerlink/internal/domain/providererr"
)

// ErrorResponse represents an error response from a provider. Providers put
// the detail either at the top level or under an "error" object.
type ErrorResponse struct {
	Success         bool            `json:"success"`
	Code            string          `json:"code"`
	Message         string          `json:"message"`
	AuthorizationID string          `json:"authorizationId"`
	Error           json.RawMessage `json:"error"`
}

type nestedError struct {
	Code            string `json:"code"`
	Message         string `json:"message"`
	AuthorizationID string `json:"authorizationId"`
}

// parseError converts a non-2xx response into a RawError. Unparseable bodies
// keep the status and use the body text as the message.
func parseError(providerName string, status int, body []byte) providererr.RawError {
	raw := providererr.RawError{Provider: providerName, Status: status}

	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		raw.Message = truncate(strings.TrimSpace(string(body)), 512)
		return raw
	}

	raw.Code = resp.Code
	raw.Message = resp.Message
	raw.AuthorizationID = resp.AuthorizationID

	if len(resp.Error) > 0 {
		var nested nestedError
		var text string
		switch {
		case json.Unmarshal(resp.Error, &nested) == nil:
			raw.Code = firstNonEmpty(nested.Code, raw.Code)
			raw.Message = firstNonEmpty(nested.Message, raw.Message)
			raw.AuthorizationID = firstNonEmpty(nested.AuthorizationID, raw.AuthorizationID)
		case json.Unmarshal(resp.Error, &text) == nil:
			if raw.Message == "" {
				raw.Message = text
			} else if raw.Code == "" {
				raw.Code = text
			}
		}
	}

	return raw
}

func newProviderError(op string, raw providererr.RawError, cause error) *providererr.ProviderError {
	return &providererr.ProviderError{Operation: op, Raw: raw, Err: cause}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

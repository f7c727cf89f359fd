package providererr

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var (
	mismatchCodes  = codeSet("USER_MISMATCH", "IDENTITY_MISMATCH")
	signatureCodes = codeSet("INVALID_SIGNATURE", "SIGNATURE_INVALID", "SIGNATURE_MISMATCH")
	rateLimitCodes = codeSet("RATE_LIMITED", "RATE_LIMIT_EXCEEDED", "TOO_MANY_REQUESTS")
	disabledCodes  = codeSet("CONNECTION_DISABLED", "AUTHORIZATION_DISABLED")
	expiredCodes   = codeSet("AUTHORIZATION_EXPIRED", "CONNECTION_EXPIRED", "AUTH_EXPIRED", "TOKEN_EXPIRED")
)

func codeSet(codes ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}

func hasCode(set map[string]struct{}, code string) bool {
	_, ok := set[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// Classify maps a raw provider failure to its canonical kind.
// Rules are evaluated in order and the first match wins.
func Classify(raw RawError) Kind {
	msg := strings.ToLower(raw.Message)

	switch {
	case raw.Status == http.StatusPreconditionRequired ||
		strings.EqualFold(raw.Code, "USER_NOT_REGISTERED") ||
		strings.Contains(msg, "not registered"):
		return KindRegistrationRequired

	case raw.Status == http.StatusConflict ||
		hasCode(mismatchCodes, raw.Code) ||
		strings.Contains(msg, "user mismatch"):
		return KindUserMismatch

	case raw.Status == http.StatusUnauthorized ||
		hasCode(signatureCodes, raw.Code) ||
		strings.Contains(msg, "signature"):
		return KindAuthConfigError

	case raw.Status == http.StatusTooManyRequests || hasCode(rateLimitCodes, raw.Code):
		return KindRateLimited

	case hasCode(disabledCodes, raw.Code):
		return KindConnectionDisabled

	case hasCode(expiredCodes, raw.Code):
		return KindAuthExpired

	case raw.Transport:
		return KindNetworkError

	case raw.Status >= 500:
		return KindProviderUnavailable

	case raw.Status >= 400 && raw.Status < 500:
		return KindClientRequestError
	}

	return KindUnknownError
}

// KindOf classifies any error returned by a provider client.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return Classify(pe.Raw)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetworkError
	}
	return KindUnknownError
}

// AuthorizationIDOf returns the authorization the failure refers to, if any.
func AuthorizationIDOf(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Raw.AuthorizationID
	}
	return ""
}

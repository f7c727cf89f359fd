package providererr

// Kind is the canonical category of a provider failure.
type Kind string

const (
	KindRegistrationRequired Kind = "registration_required"
	KindUserMismatch         Kind = "user_mismatch"
	KindAuthConfigError      Kind = "auth_config_error"
	KindRateLimited          Kind = "rate_limited"
	KindConnectionDisabled   Kind = "connection_disabled"
	KindAuthExpired          Kind = "auth_expired"
	KindNetworkError         Kind = "network_error"
	KindProviderUnavailable  Kind = "provider_unavailable"
	KindClientRequestError   Kind = "client_request_error"
	KindUnknownError         Kind = "unknown_error"
)

// Action is the recommended next step for a caller that received a failure.
type Action string

const (
	ActionNone              Action = "none"
	ActionRetryWithBackoff  Action = "retry_with_backoff"
	ActionPromptReconnect   Action = "prompt_reconnect"
	ActionPromptFinishSetup Action = "prompt_finish_setup"
	ActionMarkForRotation   Action = "mark_for_rotation"
)

// RawError is a provider failure as observed at the HTTP boundary.
type RawError struct {
	Provider        string
	Status          int
	Code            string
	Message         string
	Transport       bool
	AuthorizationID string
}

// Classification is what synchronous callers are shown instead of the raw payload.
type Classification struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Action  Action `json:"action"`
}

var descriptions = map[Kind]Classification{
	KindRegistrationRequired: {
		Kind:    KindRegistrationRequired,
		Message: "Your account with this provider is not fully set up yet. Finish registration to continue.",
		Action:  ActionPromptFinishSetup,
	},
	KindUserMismatch: {
		Kind:    KindUserMismatch,
		Message: "The stored provider credentials belong to a different user and have been retired. Please link your account again.",
		Action:  ActionMarkForRotation,
	},
	KindAuthConfigError: {
		Kind:    KindAuthConfigError,
		Message: "We could not authenticate with the provider. Our team has been notified.",
		Action:  ActionNone,
	},
	KindRateLimited: {
		Kind:    KindRateLimited,
		Message: "The provider is receiving too many requests. Please try again in a few minutes.",
		Action:  ActionRetryWithBackoff,
	},
	KindConnectionDisabled: {
		Kind:    KindConnectionDisabled,
		Message: "This connection has been disabled at your institution. Reconnect it to resume syncing.",
		Action:  ActionPromptReconnect,
	},
	KindAuthExpired: {
		Kind:    KindAuthExpired,
		Message: "Your connection has expired. Reconnect it to resume syncing.",
		Action:  ActionPromptReconnect,
	},
	KindNetworkError: {
		Kind:    KindNetworkError,
		Message: "We could not reach the provider. Please try again shortly.",
		Action:  ActionRetryWithBackoff,
	},
	KindProviderUnavailable: {
		Kind:    KindProviderUnavailable,
		Message: "The provider is temporarily unavailable. Please try again later.",
		Action:  ActionRetryWithBackoff,
	},
	KindClientRequestError: {
		Kind:    KindClientRequestError,
		Message: "The provider rejected the request.",
		Action:  ActionNone,
	},
	KindUnknownError: {
		Kind:    KindUnknownError,
		Message: "Something went wrong while talking to the provider.",
		Action:  ActionNone,
	},
}

// Describe returns the fixed user-facing message and action for a kind.
func Describe(kind Kind) Classification {
	if c, ok := descriptions[kind]; ok {
		return c
	}
	return descriptions[KindUnknownError]
}

// BreaksConnection reports whether a failure of this kind moves the
// affected connection to broken.
func (k Kind) BreaksConnection() bool {
	return k == KindAuthExpired || k == KindConnectionDisabled
}

// Retryable reports whether a later attempt may succeed without user action.
func (k Kind) Retryable() bool {
	return Describe(k).Action == ActionRetryWithBackoff
}

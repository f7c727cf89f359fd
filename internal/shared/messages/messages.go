package messages

import (
	"encoding/json"
	"fmt"
	"os"
)

// MessageText is a push title and body. "{name}" is replaced with the
// institution or provider name.
type MessageText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type Messages struct {
	ConnectionBroken   MessageText `json:"connection_broken"`
	ConnectionRestored MessageText `json:"connection_restored"`
	CredentialRotated  MessageText `json:"credential_rotated"`
}

// Defaults returns the built-in texts.
func Defaults() *Messages {
	return &Messages{
		ConnectionBroken: MessageText{
			Title: "Connection needs attention",
			Body:  "We can no longer sync {name}. Reconnect it to keep your balances up to date.",
		},
		ConnectionRestored: MessageText{
			Title: "Connection restored",
			Body:  "{name} is syncing again.",
		},
		CredentialRotated: MessageText{
			Title: "Link your account again",
			Body:  "Your {name} login no longer matches your profile. Please link it again.",
		},
	}
}

// Load reads the notifications JSON file. Texts missing from the file keep
// their defaults. An empty path returns the defaults.
func Load(path string) (*Messages, error) {
	msgs := Defaults()
	if path == "" {
		return msgs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages file: %w", err)
	}
	if err := json.Unmarshal(data, msgs); err != nil {
		return nil, fmt.Errorf("failed to parse messages file: %w", err)
	}
	return msgs, nil
}

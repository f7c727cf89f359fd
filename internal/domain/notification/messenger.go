package notification

import "context"

// Push is one notification fanned out to every active device of a user.
type Push struct {
	Title string
	Body  string
	Data  map[string]string
}

// Messenger delivers pushes to device tokens. Invalid tokens are handled by
// the implementation; delivered is the number of tokens that accepted the push.
type Messenger interface {
	Deliver(ctx context.Context, tokens []string, push Push) (delivered int, err error)
}

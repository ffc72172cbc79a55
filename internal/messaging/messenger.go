// Package messaging is the outbound notification boundary. The scheduling
// core only needs fire-and-report semantics: transport-level acceptance or
// an error, no delivery confirmation.
package messaging

import (
	"context"

	"github.com/google/uuid"
)

const (
	KindWaitlistOffer = "waitlist_offer"
)

type Message struct {
	Phone    string
	Body     string
	ClinicID uuid.UUID
	Kind     string
}

type Messenger interface {
	Send(ctx context.Context, m Message) error
}

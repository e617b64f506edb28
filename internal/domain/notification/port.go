package notification

import (
	"context"
	"time"
)

// Store is the durable record of a notification's lifecycle.
type Store interface {
	// Create inserts the pending row. Inserting an id that already exists
	// is a no-op, not an error.
	Create(ctx context.Context, n *Notification) error
	// Finalize applies the patch only while the stored status is still
	// pending. applied reports whether the transition ran; false means a
	// terminal state was already recorded and nothing changed.
	Finalize(ctx context.Context, id string, patch StatusPatch) (applied bool, err error)
	GetByID(ctx context.Context, id string) (*Notification, error)
	ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]*Notification, int, error)
}

// Target identifies where a channel adapter should deliver.
type Target struct {
	RecipientID string
	Phone       string
}

// Sender is the per-channel delivery capability. Selection of a real or
// mock implementation happens once at startup, never inside the send path.
type Sender interface {
	Name() Channel
	// Send delivers message to target and returns a provider-assigned
	// reference id. It must not block past its own time bound.
	Send(ctx context.Context, target Target, message string, payload map[string]any) (ref string, err error)
}

// PhoneResolver looks up a missing delivery address from the profile
// service. It degrades instead of raising: any failure mode surfaces as
// ErrPhoneNotFound through the profile package.
type PhoneResolver interface {
	ResolvePhone(ctx context.Context, recipientID string) (string, error)
}

type Clock interface {
	Now() time.Time
}

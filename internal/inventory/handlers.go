package inventory

import "context"

// IntegrationHandler receives inventory events after commit.
type IntegrationHandler interface {
	HandleMovementPosted(ctx context.Context, evt MovementPostedEvent) error
}

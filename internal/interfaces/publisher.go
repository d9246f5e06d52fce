package interfaces

import (
	"context"

	"github.com/raysh454/flipradar/internal/model"
)

// EventPublisher delivers real-time events. Publishing is best effort and
// must not block on slow consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

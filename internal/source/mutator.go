package source

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Mutator removes relayed bookings from the source collection. Deletion is
// gated by an explicit flag so non-production environments keep records
// around for inspection after a successful relay.
type Mutator struct {
	store   *Store
	enabled bool
	logger  *zap.Logger
}

func NewMutator(store *Store, enabled bool, logger *zap.Logger) (*Mutator, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Mutator{store: store, enabled: enabled, logger: logger}, nil
}

// Delete removes the booking when deletion is enabled; otherwise it logs and
// retains the record.
func (m *Mutator) Delete(ctx context.Context, id string) error {
	if !m.enabled {
		m.logger.Info("source delete disabled, retaining booking",
			zap.String("bookingId", id),
		)
		return nil
	}

	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}

	m.logger.Debug("booking removed from source", zap.String("bookingId", id))
	return nil
}

// Enabled reports whether deletes are performed.
func (m *Mutator) Enabled() bool {
	return m.enabled
}

package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/businessweb01/dbmiddleware/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix     = "booking:"
	scanBatchSize = 100
)

// Key returns the source key for a booking id, e.g. booking:B1.
func Key(id string) string {
	return keyPrefix + id
}

// IDFromKey extracts the booking id from a source key. Empty when the key is
// not part of the booking collection.
func IDFromKey(key string) string {
	if !strings.HasPrefix(key, keyPrefix) {
		return ""
	}
	return strings.TrimPrefix(key, keyPrefix)
}

// Store reads and mutates the remote booking collection.
type Store struct {
	client *goredis.Client
	logger *zap.Logger
}

func NewStore(client *goredis.Client, logger *zap.Logger) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{client: client, logger: logger}, nil
}

// Get fetches and decodes one booking. Returns domain.ErrNotFound when the
// record no longer exists and domain.ErrInvalidRecord when it cannot be
// decoded.
func (s *Store) Get(ctx context.Context, id string) (*domain.Booking, error) {
	raw, err := s.client.Get(ctx, Key(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("%w: booking %q", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read booking %q: %w", id, err)
	}

	return domain.DecodeBooking(id, raw)
}

// ScanIDs walks the full booking collection and returns every record id.
// The caller fetches each record individually so catch-up scans and live
// change events go through the exact same read path.
func (s *Store) ScanIDs(ctx context.Context) ([]string, error) {
	var ids []string
	var cursor uint64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*", scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan bookings: %w", err)
		}

		for _, key := range keys {
			if id := IDFromKey(key); id != "" {
				ids = append(ids, id)
			}
		}

		cursor = next
		if cursor == 0 {
			return ids, nil
		}
	}
}

// Delete removes a booking from the source collection.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, Key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete booking %q: %w", id, err)
	}
	return nil
}

// Ping reports source connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("source ping failed: %w", err)
	}
	return nil
}

package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// Message is the envelope carried by every bus strategy. Data holds the
// JSON-encoded payload identified by Type.
type Message struct {
	Type      string          `json:"type"`
	Sender    string          `json:"sender"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", m.Type, err)
	}
	return nil
}

type Handler func(ctx context.Context, msg Message)

type Subscription interface {
	Unsubscribe() error
}

// Bus broadcasts messages to every other subscriber of the same channel.
type Bus interface {
	// Broadcast hands msg to the underlying primitive. Delivery is best effort.
	Broadcast(ctx context.Context, msg Message) error

	// Subscribe delivers messages until ctx is done or the subscription is removed.
	Subscribe(ctx context.Context, h Handler) (Subscription, error)

	Close() error
}

// Strategy opens one kind of Bus.
type Strategy struct {
	Name string
	Open func(ctx context.Context) (Bus, error)
}

// Select opens the first strategy that succeeds and reports its name.
func Select(ctx context.Context, log *slog.Logger, strategies ...Strategy) (Bus, string, error) {
	if log == nil {
		log = slog.Default()
	}
	var errs []error
	for _, s := range strategies {
		if s.Open == nil {
			continue
		}
		b, err := s.Open(ctx)
		if err != nil {
			log.Warn("bus strategy unavailable", slog.String("strategy", s.Name), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		log.Debug("bus strategy selected", slog.String("strategy", s.Name))
		return b, s.Name, nil
	}
	return nil, "", errors.Join(append([]error{ErrUnavailable}, errs...)...)
}

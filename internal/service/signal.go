package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/lacomunita/comunita/internal/domain"
)

type SignalService struct {
	rdb *redis.Client
}

func NewSignalService(redisClient *redis.Client) *SignalService {
	return &SignalService{
		rdb: redisClient,
	}
}

func chatChannel(chatID int64) string {
	return fmt.Sprintf("comunita:chat:%d", chatID)
}

// Publish fans a message event out to the chat's realtime channel.
func (s *SignalService) Publish(ctx context.Context, event domain.Event) error {
	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, chatChannel(event.ChatID), jsonstr).Err()
	if err != nil {
		return err
	}

	return nil
}

// Realtime streams events for the chat ids received on input until the
// context is done. Each new id list replaces the previous subscription set.
func (s *SignalService) Realtime(ctx context.Context, input chan []int64, output chan domain.Event) {
	pubsub := s.rdb.Subscribe(ctx)
	defer pubsub.Close()

	events := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case chatIDs, ok := <-input:
			if !ok {
				return
			}
			channels := make([]string, 0, len(chatIDs))
			for _, id := range chatIDs {
				channels = append(channels, chatChannel(id))
			}
			err := pubsub.Unsubscribe(ctx)
			if err != nil {
				slog.ErrorContext(
					ctx, "Failed to unsubscribe",
					slog.String("error", err.Error()),
					slog.String("module", "signal"),
				)
			}
			if len(channels) > 0 {
				err = pubsub.Subscribe(ctx, channels...)
				if err != nil {
					slog.ErrorContext(
						ctx, "Failed to subscribe",
						slog.String("error", err.Error()),
						slog.String("module", "signal"),
					)
				}
			}
		case msg, ok := <-events:
			if !ok {
				return
			}
			var event domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.ErrorContext(
					ctx, "Failed to decode event",
					slog.String("error", err.Error()),
					slog.String("module", "signal"),
				)
				continue
			}
			select {
			case output <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"passionautos/internal/chat"
)

// Feed implements the message-insert change feed over a Kafka topic.
// Every subscription runs its own consumer group with a fresh group id,
// so each subscriber observes all inserts from the moment it attaches.
// Delivery is at-least-once; consumers de-duplicate by message id.
type Feed struct {
	brokers []string
	topic   string
	logger  *slog.Logger
}

func NewFeed(brokers []string, topic string, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{brokers: brokers, topic: topic, logger: logger}
}

// SubscribeMessages attaches a consumer for inserts, optionally filtered
// by conversation. The subscription outlives ctx; Close tears it down.
func (f *Feed) SubscribeMessages(ctx context.Context, conversationID string, fn chat.MessageFunc) (chat.Subscription, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest

	groupID := "passionautos-feed-" + uuid.NewString()
	group, err := sarama.NewConsumerGroup(f.brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sub := &feedSubscription{group: group, cancel: cancel, done: make(chan struct{})}
	handler := insertHandler{conversationID: conversationID, fn: fn, logger: f.logger}
	go func() {
		defer close(sub.done)
		for {
			if err := group.Consume(runCtx, []string{f.topic}, handler); err != nil {
				if runCtx.Err() != nil {
					return
				}
				f.logger.Warn("feed consume failed", "topic", f.topic, "error", err)
			}
			if runCtx.Err() != nil {
				return
			}
		}
	}()
	return sub, nil
}

type feedSubscription struct {
	group  sarama.ConsumerGroup
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *feedSubscription) Close() error {
	s.cancel()
	<-s.done
	return s.group.Close()
}

type insertHandler struct {
	conversationID string
	fn             chat.MessageFunc
	logger         *slog.Logger
}

func (h insertHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h insertHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h insertHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for record := range claim.Messages() {
		var msg chat.Message
		if err := json.Unmarshal(record.Value, &msg); err != nil {
			h.logger.Warn("dropping malformed feed event", "topic", record.Topic, "offset", record.Offset, "error", err)
			sess.MarkMessage(record, "")
			continue
		}
		if h.conversationID == "" || h.conversationID == msg.ConversationID {
			h.fn(msg)
		}
		sess.MarkMessage(record, "")
	}
	return nil
}

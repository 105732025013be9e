package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"nimbus/internal/model"
	"nimbus/internal/repository"
)

// MessagePersistWorker drains the chat message queue into the database.
// Chat replies are already delivered by the time messages land here, so
// a failed write costs history, never a response.
type MessagePersistWorker struct {
	conn        *amqp.Connection
	messageRepo *repository.ChatMessageRepository
	sessionRepo *repository.ChatSessionRepository
	queueName   string
	logger      *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMessagePersistWorker(
	conn *amqp.Connection,
	messageRepo *repository.ChatMessageRepository,
	sessionRepo *repository.ChatSessionRepository,
	queueName string,
	logger *zap.Logger,
) *MessagePersistWorker {
	return &MessagePersistWorker{
		conn:        conn,
		messageRepo: messageRepo,
		sessionRepo: sessionRepo,
		queueName:   queueName,
		logger:      logger,
	}
}

func (w *MessagePersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var msg model.ChatMessage
				if err := json.Unmarshal(d.Body, &msg); err != nil {
					w.logger.Error("worker decode message failed", zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				if err := w.messageRepo.Create(&msg); err != nil {
					w.logger.Error("worker persist message failed",
						zap.String("session_id", msg.SessionID), zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}
				if err := w.sessionRepo.Touch(msg.SessionID); err != nil {
					w.logger.Warn("worker touch session failed",
						zap.String("session_id", msg.SessionID), zap.Error(err))
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *MessagePersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

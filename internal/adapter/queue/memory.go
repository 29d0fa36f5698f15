package queue

import (
	"sync"

	"go.uber.org/zap"
)

// MemoryQueue implements MessageQueue in-process. Used as a fallback
// when no NATS URL is configured, so event consumers (websocket hub,
// background workers) keep working in single-node deployments.
type MemoryQueue struct {
	mu       sync.RWMutex
	handlers map[string][]func(data []byte) error
	log      *zap.Logger
}

func NewMemoryQueue(log *zap.Logger) MessageQueue {
	log.Info("In-memory message queue initialized")
	return &MemoryQueue{
		handlers: make(map[string][]func(data []byte) error),
		log:      log,
	}
}

func (q *MemoryQueue) Publish(subject string, data []byte) error {
	q.mu.RLock()
	handlers := q.handlers[subject]
	q.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(data); err != nil {
			q.log.Error("Error processing message", zap.String("subject", subject), zap.Error(err))
		}
	}
	return nil
}

func (q *MemoryQueue) Subscribe(subject string, handler func(data []byte) error) error {
	q.mu.Lock()
	q.handlers[subject] = append(q.handlers[subject], handler)
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) Close() error {
	return nil
}

package brokersvc

import (
	"context"
	"sync"

	"github.com/lifecraft/backend/core"
)

// InmemBroker records published messages; used in tests and local development.
type InmemBroker struct {
	mutex    sync.Mutex
	Messages []core.BadgeEvaluation
}

var _ core.Broker = (*InmemBroker)(nil)

func NewInmemBroker() *InmemBroker { return &InmemBroker{} }

func (b *InmemBroker) PublishBadgeEvaluation(_ context.Context, msg core.BadgeEvaluation) error {
	b.mutex.Lock()
	b.Messages = append(b.Messages, msg)
	b.mutex.Unlock()
	return nil
}

func (b *InmemBroker) Close() error { return nil }

// Reset clears the recorded messages.
func (b *InmemBroker) Reset() {
	b.mutex.Lock()
	b.Messages = nil
	b.mutex.Unlock()
}

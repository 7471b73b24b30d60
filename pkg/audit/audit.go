// Package audit records platform and tenant mutations asynchronously. Events
// are handed to an actor that writes them to the audit store, so callers
// never wait on the write.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/repository"
	"go.uber.org/zap"
)

// Event describes one mutation.
type Event struct {
	Service  string
	Action   string
	ActorID  string
	EntityID string
	Data     map[string]interface{}
}

// Recorder accepts audit events without blocking.
type Recorder interface {
	Record(ev Event)
}

// Store persists audit entries.
type Store interface {
	CreateAuditLog(ctx context.Context, log *repository.AuditLog) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Record(Event) {}

// messages
type record struct {
	event Event
	at    time.Time
}

type flush struct{}

type flushed struct{}

type writerActor struct {
	store   Store
	logger  *zap.Logger
	timeout time.Duration
}

func (a *writerActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *record:
		a.write(msg)

	case *flush:
		ctx.Respond(&flushed{})

	case *actor.Started:
		a.logger.Debug("Audit writer started")

	case *actor.Stopped:
		a.logger.Debug("Audit writer stopped")
	}
}

func (a *writerActor) write(msg *record) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	entry := &repository.AuditLog{
		Service:   msg.event.Service,
		Action:    msg.event.Action,
		ActorID:   msg.event.ActorID,
		EntityID:  msg.event.EntityID,
		Data:      msg.event.Data,
		CreatedAt: msg.at,
	}
	if err := a.store.CreateAuditLog(ctx, entry); err != nil {
		if errs.Is(err, errs.ENotConfigured) {
			a.logger.Debug("Audit store not configured, entry dropped", zap.String("action", entry.Action))
			return
		}
		a.logger.Warn("Failed to write audit log",
			zap.String("action", entry.Action),
			zap.String("entity_id", entry.EntityID),
			zap.Error(err))
	}
}

// Pipeline owns the actor system running the audit writer.
type Pipeline struct {
	system *actor.ActorSystem
	pid    *actor.PID
	logger *zap.Logger
}

func NewPipeline(store Store, logger *zap.Logger) (*Pipeline, error) {
	system := actor.NewActorSystem()
	props := actor.PropsFromProducer(func() actor.Actor {
		return &writerActor{store: store, logger: logger, timeout: 5 * time.Second}
	})
	pid, err := system.Root.SpawnNamed(props, "audit-writer")
	if err != nil {
		return nil, fmt.Errorf("failed to spawn audit writer: %w", err)
	}
	return &Pipeline{system: system, pid: pid, logger: logger}, nil
}

// Record enqueues an event; it returns immediately.
func (p *Pipeline) Record(ev Event) {
	p.system.Root.Send(p.pid, &record{event: ev, at: time.Now()})
}

// Flush waits until every event recorded before the call has been written.
func (p *Pipeline) Flush(timeout time.Duration) error {
	_, err := p.system.Root.RequestFuture(p.pid, &flush{}, timeout).Result()
	return err
}

// Stop drains the mailbox and stops the writer.
func (p *Pipeline) Stop() error {
	if err := p.system.Root.PoisonFuture(p.pid).Wait(); err != nil {
		p.logger.Warn("Audit writer did not stop cleanly", zap.Error(err))
		return err
	}
	return nil
}

// Package poller pulls the chat fabric's incremental sync stream and routes
// room events to the intake, reply, and reaction services.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opentriagem/triagem/pkg/config"
	"github.com/opentriagem/triagem/pkg/matrix"
)

// Handlers are the event sinks the poller dispatches into. Handler errors are
// logged and dropped: the sync cursor still advances, and recovery of lost
// work is the job queue's concern, not the poller's.
type Handlers struct {
	Room1PDF   func(ctx context.Context, roomID string, ev matrix.TimelineEvent) error
	Room2Reply func(ctx context.Context, ev matrix.TimelineEvent) error
	Room3Reply func(ctx context.Context, ev matrix.TimelineEvent) error
	Reaction   func(ctx context.Context, roomID string, ev matrix.TimelineEvent) error
}

// Poller drives the sync loop. The since cursor is in-memory only: a restart
// re-reads from the fabric's initial window, and the per-event idempotency
// ledgers downstream absorb the replay.
type Poller struct {
	syncer   matrix.Syncer
	handlers Handlers
	rooms    config.RoomsConfig
	botUser  string
	interval time.Duration
	logger   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	since string
}

func New(syncer matrix.Syncer, handlers Handlers, rooms config.RoomsConfig,
	botUserID string, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		syncer:   syncer,
		handlers: handlers,
		rooms:    rooms,
		botUser:  botUserID,
		interval: interval,
		logger:   logger.With("component", "poller"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the sync loop in a goroutine.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.run(ctx)
}

// Stop signals the loop and waits for the current cycle to finish.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()
	p.logger.Info("poller started")

	for {
		select {
		case <-p.stopCh:
			p.logger.Info("poller shutting down")
			return
		case <-ctx.Done():
			p.logger.Info("context cancelled, poller shutting down")
			return
		default:
			p.Cycle(ctx)
			p.sleep(p.interval)
		}
	}
}

// Cycle performs one sync pull and dispatches its events. On transport
// failure the cursor stays put so the next cycle retries the same window.
func (p *Poller) Cycle(ctx context.Context) {
	batch, err := p.syncer.Sync(ctx, p.since)
	if err != nil {
		p.logger.Error("sync failed", "error", err)
		return
	}

	for _, roomID := range batch.InvitedRooms {
		if err := p.syncer.JoinRoom(ctx, roomID); err != nil {
			p.logger.Error("invite accept failed", "room_id", roomID, "error", err)
		} else {
			p.logger.Info("invite accepted", "room_id", roomID)
		}
	}

	for _, roomID := range []string{p.rooms.Room1ID, p.rooms.Room2ID, p.rooms.Room3ID} {
		for _, ev := range batch.JoinedRooms[roomID] {
			p.dispatch(ctx, roomID, ev)
		}
	}

	// Advance only after the whole batch was offered to the handlers.
	p.since = batch.NextBatch
}

func (p *Poller) dispatch(ctx context.Context, roomID string, ev matrix.TimelineEvent) {
	if ev.Sender == p.botUser {
		return
	}
	var err error
	switch {
	case ev.Type == matrix.TypeReaction:
		if p.handlers.Reaction != nil {
			err = p.handlers.Reaction(ctx, roomID, ev)
		}
	case roomID == p.rooms.Room1ID && ev.IsPDFFile():
		if p.handlers.Room1PDF != nil {
			err = p.handlers.Room1PDF(ctx, roomID, ev)
		}
	case roomID == p.rooms.Room2ID && ev.Type == matrix.TypeMessage && ev.MsgType == matrix.MsgTypeText:
		if p.handlers.Room2Reply != nil {
			err = p.handlers.Room2Reply(ctx, ev)
		}
	case roomID == p.rooms.Room3ID && ev.Type == matrix.TypeMessage && ev.MsgType == matrix.MsgTypeText:
		if p.handlers.Room3Reply != nil {
			err = p.handlers.Room3Reply(ctx, ev)
		}
	}
	if err != nil {
		p.logger.Error("event handler failed",
			"room_id", roomID, "event_id", ev.EventID, "type", ev.Type, "error", err)
	}
}

// JoinConfiguredRooms joins the three monitored rooms at startup so a fresh
// bot account starts receiving their timelines.
func (p *Poller) JoinConfiguredRooms(ctx context.Context) {
	for _, roomID := range []string{p.rooms.Room1ID, p.rooms.Room2ID, p.rooms.Room3ID} {
		if roomID == "" {
			continue
		}
		if err := p.syncer.JoinRoom(ctx, roomID); err != nil {
			p.logger.Warn("startup room join failed", "room_id", roomID, "error", err)
		}
	}
}

func (p *Poller) sleep(d time.Duration) {
	select {
	case <-p.stopCh:
	case <-time.After(d):
	}
}

package briefing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/websocket"
)

// Hub is where the scheduler finds connected households and tells them
// their alerts changed. *websocket.Hub implements it.
type Hub interface {
	Households() []string
	Broadcast(householdID string, msg websocket.Message)
}

type SnapshotSource interface {
	Build(ctx context.Context, householdID string) (model.Snapshot, error)
}

// Scheduler periodically recomputes the alerts of connected households and
// sends an "alerts_changed" message when they differ from the last check,
// which also happens as days roll over.
type Scheduler struct {
	mu        sync.Mutex
	hub       Hub
	snapshots SnapshotSource
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
	seen      map[string]string
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewScheduler(hub Hub, snapshots SnapshotSource, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		hub:       hub,
		snapshots: snapshots,
		interval:  interval,
		now:       time.Now,
		logger:    logger,
		seen:      make(map[string]string),
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop ends the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func fingerprint(alerts []Alert) string {
	var b strings.Builder
	for _, a := range alerts {
		fmt.Fprintf(&b, "%s:%s:%d;", a.Kind, a.RecordID, a.Days)
	}
	return b.String()
}

// tick checks every connected household once. A household seen for the
// first time is only recorded, since its clients just loaded.
func (s *Scheduler) tick(ctx context.Context) {
	today := s.now()
	connected := s.hub.Households()

	s.mu.Lock()
	defer s.mu.Unlock()

	live := make(map[string]bool, len(connected))
	for _, hid := range connected {
		live[hid] = true

		snap, err := s.snapshots.Build(ctx, hid)
		if err != nil {
			s.logger.Error("build snapshot for alerts", "household_id", hid, "error", err)
			continue
		}
		fp := fingerprint(Compute(snap, today))

		prev, known := s.seen[hid]
		s.seen[hid] = fp
		if known && prev != fp {
			s.logger.Debug("alerts changed", "household_id", hid)
			s.hub.Broadcast(hid, websocket.NewMessage("alerts", "changed", ""))
		}
	}

	for hid := range s.seen {
		if !live[hid] {
			delete(s.seen, hid)
		}
	}
}

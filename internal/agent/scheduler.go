package agent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Watch is a standing diagnostic query re-run on an interval. A zero
// interval runs it once.
type Watch struct {
	ID       int
	Query    string
	Interval time.Duration
	LastRun  time.Time
}

type WatchStore interface {
	DueWatches(ctx context.Context) ([]Watch, error)
	MarkWatchRun(ctx context.Context, id int) error
	DeleteWatch(ctx context.Context, id int) error
}

// Notifier receives the rendered report of each scheduled run.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Runner executes one diagnostic run. *Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, query string) *Report
}

// Scheduler polls for due watches and runs them unattended.
type Scheduler struct {
	Runner   Runner
	Store    WatchStore
	Notifier Notifier
	Poll     time.Duration
	// Turn, when set, is held across each watch's run and its notification.
	// Share it with a chat server so that the two never talk over each other.
	Turn     sync.Locker
}

func NewScheduler(runner Runner, store WatchStore, notifier Notifier) *Scheduler {
	return &Scheduler{
		Runner:   runner,
		Store:    store,
		Notifier: notifier,
		Poll:     30 * time.Second,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Poll)
	defer ticker.Stop()

	log.Println("Watch scheduler started...")

	s.RunDue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue executes every due watch once and returns how many ran.
func (s *Scheduler) RunDue(ctx context.Context) int {
	watches, err := s.Store.DueWatches(ctx)
	if err != nil {
		log.Printf("Error polling watches: %v", err)
		return 0
	}

	ran := 0
	for _, w := range watches {
		if ctx.Err() != nil {
			break
		}
		s.runWatch(ctx, w)
		ran++
	}
	return ran
}

func (s *Scheduler) runWatch(ctx context.Context, w Watch) {
	if s.Turn != nil {
		s.Turn.Lock()
		defer s.Turn.Unlock()
	}
	log.Printf("Executing watch %d: %s", w.ID, w.Query)

	rep := s.Runner.Run(ctx, w.Query)

	if err := s.Store.MarkWatchRun(ctx, w.ID); err != nil {
		log.Printf("Error updating last run for watch %d: %v", w.ID, err)
	}
	if w.Interval == 0 {
		if err := s.Store.DeleteWatch(ctx, w.ID); err != nil {
			log.Printf("Error deleting one-shot watch %d: %v", w.ID, err)
		}
	}

	if s.Notifier != nil {
		msg := fmt.Sprintf("Scheduled diagnostic #%d: %s\n\n%s", w.ID, w.Query, rep.Render())
		if err := s.Notifier.Send(ctx, msg); err != nil {
			log.Printf("Error notifying watch %d: %v", w.ID, err)
		}
	}
}

package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rahul/plantdoc/internal/agent"
)

// scriptMessenger replays inbound lines and collects outbound messages.
// Sends fail with sendErr once failAfter messages have been delivered.
type scriptMessenger struct {
	in        []string
	out       []string
	sendErr   error
	failAfter int
}

func (m *scriptMessenger) Send(ctx context.Context, text string) error {
	if m.sendErr != nil && len(m.out) >= m.failAfter {
		return m.sendErr
	}
	m.out = append(m.out, text)
	return nil
}

func (m *scriptMessenger) Receive(ctx context.Context) (string, error) {
	if len(m.in) == 0 {
		return "", io.EOF
	}
	line := m.in[0]
	m.in = m.in[1:]
	return line, nil
}

func (m *scriptMessenger) Close() error { return nil }

func TestServer_Serve(t *testing.T) {
	m := &scriptMessenger{in: []string{"", "c", "Why is pump 3 hot?", "exit", "never read"}}
	var queries []string
	s := &Server{
		Messenger: m,
		Greeting:  "ready",
		ExitWords: []string{"exit"},
		Run: func(ctx context.Context, query string) string {
			queries = append(queries, query)
			return "answer for " + query
		},
	}

	if err := s.Serve(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(queries) != 1 || queries[0] != "Why is pump 3 hot?" {
		t.Errorf("queries = %v", queries)
	}
	if len(m.in) != 1 {
		t.Error("serve should stop at the exit word")
	}

	all := strings.Join(m.out, "\n")
	for _, want := range []string{"ready", "No run is awaiting review", "answer for Why is pump 3 hot?"} {
		if !strings.Contains(all, want) {
			t.Errorf("output missing %q: %v", want, m.out)
		}
	}
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(prev) })
	return &buf
}

func TestServer_SendFailuresAreLogged(t *testing.T) {
	logs := captureLog(t)
	m := &scriptMessenger{in: []string{"q", "pump 3 status"}, sendErr: errors.New("chat unreachable")}
	ran := 0
	s := &Server{Messenger: m, Run: func(ctx context.Context, query string) string {
		ran++
		return "ok"
	}}

	if err := s.Serve(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ran != 1 {
		t.Errorf("the query should still run, ran = %d", ran)
	}
	if n := strings.Count(logs.String(), "send failed: chat unreachable"); n != 3 {
		t.Errorf("logged %d send failures:\n%s", n, logs.String())
	}
}

// lockedMessenger is a messenger the scheduler and the server can share.
type lockedMessenger struct {
	mu  sync.Mutex
	in  chan string
	out []string
}

func (m *lockedMessenger) Send(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out = append(m.out, text)
	return nil
}

func (m *lockedMessenger) Receive(ctx context.Context) (string, error) {
	select {
	case line, ok := <-m.in:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *lockedMessenger) Close() error { return nil }

type inFlightCounter struct {
	mu       sync.Mutex
	cur, max int
}

func (c *inFlightCounter) enter() {
	c.mu.Lock()
	c.cur++
	if c.cur > c.max {
		c.max = c.cur
	}
	c.mu.Unlock()
}

func (c *inFlightCounter) leave() {
	c.mu.Lock()
	c.cur--
	c.mu.Unlock()
}

type watchList struct {
	mu  sync.Mutex
	due []agent.Watch
}

func (w *watchList) DueWatches(ctx context.Context) ([]agent.Watch, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	due := w.due
	w.due = nil
	return due, nil
}

func (w *watchList) MarkWatchRun(ctx context.Context, id int) error { return nil }
func (w *watchList) DeleteWatch(ctx context.Context, id int) error { return nil }

type slowRunner struct{ inFlight *inFlightCounter }

func (r slowRunner) Run(ctx context.Context, query string) *agent.Report {
	r.inFlight.enter()
	defer r.inFlight.leave()
	time.Sleep(20 * time.Millisecond)
	return &agent.Report{Query: query, Phase: agent.PhaseDone, Answer: &agent.FinalAnswer{Summary: "normal"}}
}

func TestServer_SharesTurnWithScheduler(t *testing.T) {
	inFlight := &inFlightCounter{}
	m := &lockedMessenger{in: make(chan string, 4)}
	runner := slowRunner{inFlight: inFlight}

	var turn sync.Mutex
	watches := &watchList{}
	for i := 1; i <= 4; i++ {
		watches.due = append(watches.due, agent.Watch{ID: i, Query: "compressor C-1 pressure"})
	}
	sched := agent.NewScheduler(runner, watches, m)
	sched.Turn = &turn

	srv := &Server{
		Messenger: m,
		Turn:      &turn,
		Run: func(ctx context.Context, query string) string {
			return runner.Run(ctx, query).Render()
		},
	}
	for _, q := range []string{"pump 3 temperature", "pump 3 vibration", "seal limits"} {
		m.in <- q
	}
	close(m.in)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sched.RunDue(context.Background())
	}()
	go func() {
		defer wg.Done()
		srv.Serve(context.Background())
	}()
	wg.Wait()

	if inFlight.max != 1 {
		t.Errorf("%d runs overlapped", inFlight.max)
	}
	if len(m.out) != 4+3*2 {
		t.Errorf("sent %d messages", len(m.out))
	}
}

package gateway

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
)

// Messenger is a two-way text channel to an operator (console, Telegram, Discord).
type Messenger interface {
	// Send delivers text to the operator.
	Send(ctx context.Context, text string) error
	// Receive blocks until the operator sends a line, ctx ends, or the channel closes (io.EOF).
	Receive(ctx context.Context) (string, error)
	// Close releases the underlying connection.
	Close() error
}

// Server answers diagnostic questions arriving over a messenger, one run at a time.
// While a run is in progress its gate reads from the same messenger.
type Server struct {
	Messenger Messenger
	Run       func(ctx context.Context, query string) string
	Greeting  string
	// ExitWords end the loop when received outside a review.
	ExitWords []string
	// Turn, when set, is held while a query runs and its reply is sent.
	Turn      sync.Locker
}

func (s *Server) Serve(ctx context.Context) error {
	if s.Greeting != "" {
		if err := s.Messenger.Send(ctx, s.Greeting); err != nil {
			return err
		}
	}

	for {
		text, err := s.Messenger.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		query := strings.TrimSpace(text)
		if query == "" {
			continue
		}
		if s.isExit(query) {
			return nil
		}
		if _, err := ParseCommand(query); err == nil {
			s.say(ctx, "No run is awaiting review. Send a question to start one.")
			continue
		}

		log.Printf("[Gateway] query: %s", query)
		s.answer(ctx, query)
	}
}

func (s *Server) answer(ctx context.Context, query string) {
	if s.Turn != nil {
		s.Turn.Lock()
		defer s.Turn.Unlock()
	}
	s.say(ctx, "Working on it...")
	s.say(ctx, s.Run(ctx, query))
}

func (s *Server) say(ctx context.Context, text string) {
	if err := s.Messenger.Send(ctx, text); err != nil {
		log.Printf("[Gateway] send failed: %v", err)
	}
}

func (s *Server) isExit(query string) bool {
	for _, w := range s.ExitWords {
		if strings.EqualFold(query, w) {
			return true
		}
	}
	return false
}

// splitMessage breaks text into chunks no longer than limit runes,
// preferring line boundaries. Chat platforms cap message length.
func splitMessage(text string, limit int) []string {
	if limit <= 0 || len([]rune(text)) <= limit {
		return []string{text}
	}

	var chunks []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, string(cur))
			cur = cur[:0]
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		r := []rune(line)
		if len(cur)+len(r) > limit {
			flush()
		}
		for len(r) > limit {
			chunks = append(chunks, string(r[:limit]))
			r = r[limit:]
		}
		cur = append(cur, r...)
	}
	flush()
	return chunks
}

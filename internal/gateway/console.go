package gateway

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
)

type line struct {
	text string
	err  error
}

// ConsoleMessenger talks to an operator over a reader and a writer,
// normally stdin and stdout. Reads happen on a background goroutine so
// Receive can honour ctx.
type ConsoleMessenger struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan line
}

func NewConsoleMessenger(in io.Reader, out io.Writer) *ConsoleMessenger {
	return &ConsoleMessenger{in: in, out: out, lines: make(chan line)}
}

func (c *ConsoleMessenger) Send(ctx context.Context, text string) error {
	_, err := fmt.Fprintln(c.out, text)
	return err
}

func (c *ConsoleMessenger) Receive(ctx context.Context) (string, error) {
	c.once.Do(func() { go c.read() })

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return l.text, l.err
	}
}

func (c *ConsoleMessenger) read() {
	defer close(c.lines)
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		c.lines <- line{text: scanner.Text()}
	}
	if err := scanner.Err(); err != nil {
		c.lines <- line{err: err}
	}
}

func (c *ConsoleMessenger) Close() error {
	return nil
}

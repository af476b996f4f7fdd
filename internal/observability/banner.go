package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	colorReset    = "\033[0m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
	colorPurple   = "\033[35m"
)

// termMu serialises log output with prompts written by the console gate.
var termMu sync.Mutex

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// IsInteractive reports whether f is attached to a terminal.
func IsInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

type termWriter struct {
	w io.Writer
}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return tw.w.Write(p)
}

// NewTermWriter returns an io.Writer suitable for log.SetOutput().
// It serialises writes with anything else going through a TermWriter.
func NewTermWriter(w io.Writer) io.Writer {
	if w == nil {
		w = os.Stderr
	}
	return termWriter{w: w}
}

func PrintBanner(w io.Writer) {
	banner := `
    ____  __    ___    _   ________   ____  ____  ______
   / __ \/ /   /   |  / | / /_  __/  / __ \/ __ \/ ____/
  / /_/ / /   / /| | /  |/ / / /    / / / / / / / /
 / ____/ /___/ ___ |/ /|  / / /    / /_/ / /_/ / /___
/_/   /_____/_/  |_/_/ |_/ /_/    /_____/\____/\____/

        >> HUMAN-GATED EQUIPMENT DIAGNOSTICS <<
`

	width := termWidth()
	lines := strings.Split(banner, "\n")

	termMu.Lock()
	defer termMu.Unlock()
	for _, l := range lines {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Fprintf(w, "%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan+l, colorReset)
	}
}

// StatusLine renders the current role and task on one line.
func StatusLine() string {
	role, task, since := GetStatus()
	roleColor := colorNeonCyan
	if role == RoleOperator {
		roleColor = colorNeonMag
	}
	if task == "" {
		task = "Waiting..."
	}
	if r := []rune(task); len(r) > 40 {
		task = string(r[:37]) + "..."
	}
	return fmt.Sprintf("%s[%s]%s %s %s(%v)%s",
		roleColor, role, colorReset, task, colorPurple, time.Since(since).Round(time.Second), colorReset)
}

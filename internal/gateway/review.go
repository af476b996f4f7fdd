package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rahul/plantdoc/internal/agent"
)

// CommandKind is one of the operator's review choices.
type CommandKind string

const (
	CmdContinue   CommandKind = "continue"
	CmdSynthesize CommandKind = "synthesize"
	CmdEdit       CommandKind = "edit"
	CmdQuit       CommandKind = "quit"
)

// Command is a parsed operator reply. Steps is set for an inline edit
// ("e SCADA: x, MANUAL: y").
type Command struct {
	Kind  CommandKind
	Steps []agent.PlanStep
}

var errUnknownCommand = errors.New("invalid choice, please enter 'c', 's', 'e', or 'q'")

// ParseCommand reads c/continue, s/synthesize, e/edit [steps], q/quit/abort.
// A leading slash is accepted for chat clients.
func ParseCommand(input string) (Command, error) {
	input = strings.TrimPrefix(strings.TrimSpace(input), "/")
	word, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	var kind CommandKind
	switch strings.ToLower(word) {
	case "c", "continue":
		kind = CmdContinue
	case "s", "synthesize":
		kind = CmdSynthesize
	case "e", "edit":
		steps, err := agent.ParseStepList(rest)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: CmdEdit, Steps: steps}, nil
	case "q", "quit", "abort":
		kind = CmdQuit
	default:
		return Command{}, errUnknownCommand
	}
	if rest != "" {
		return Command{}, errUnknownCommand
	}
	return Command{Kind: kind}, nil
}

// Resolve turns an operator command into the gate's final decision.
func Resolve(cmd Command, snapshot agent.State, proposal agent.Decision) agent.FinalDecision {
	switch cmd.Kind {
	case CmdContinue:
		if proposal.Action == agent.ActionContinue || proposal.Action == agent.ActionInsert {
			return agent.Accept(proposal, snapshot)
		}
		return agent.FinalDecision{Action: agent.ActionContinue, Reason: fmt.Sprintf("operator overrode %s proposal", proposal.Action)}
	case CmdSynthesize:
		return agent.FinalDecision{Action: agent.ActionSynthesize, Reason: "operator requested synthesis"}
	case CmdEdit:
		return agent.FinalDecision{Action: agent.ActionEditPlan, Plan: cmd.Steps, Reason: "operator edited the plan"}
	}
	return agent.FinalDecision{Action: agent.ActionAbort, Kind: agent.KindHumanAbort, Reason: "operator quit"}
}

const previewLen = 100

// RenderReview formats the state overview shown to the operator.
func RenderReview(snapshot agent.State, proposal agent.Decision) string {
	var sb strings.Builder
	sb.WriteString("--- HUMAN IN THE LOOP: Review Required ---\n")
	sb.WriteString("Current State Overview:\n")
	fmt.Fprintf(&sb, "  User Query: %s\n", snapshot.Query)

	fmt.Fprintf(&sb, "  Completed Steps (%d):\n", len(snapshot.History))
	if len(snapshot.History) == 0 {
		sb.WriteString("    No steps completed yet.\n")
	}
	for i, r := range snapshot.History {
		fmt.Fprintf(&sb, "    %d. %s\n", i+1, r.Step)
		if r.Succeeded {
			fmt.Fprintf(&sb, "       Result Preview: %s\n", preview(r.Payload))
		} else {
			fmt.Fprintf(&sb, "       FAILED: %s\n", preview(r.Error))
		}
	}

	fmt.Fprintf(&sb, "  Next Planned Steps (%d):\n", len(snapshot.Plan))
	if len(snapshot.Plan) == 0 {
		sb.WriteString("    No steps remaining.\n")
	}
	for i, s := range snapshot.Plan {
		fmt.Fprintf(&sb, "    %d. %s\n", i+1, s)
	}

	fmt.Fprintf(&sb, "\nProposed: %s\n", proposal)
	for _, s := range proposal.Steps {
		fmt.Fprintf(&sb, "    + %s\n", s)
	}

	sb.WriteString("\nOptions:\n")
	sb.WriteString("  'c' / 'continue': Proceed with the current plan.\n")
	sb.WriteString("  's' / 'synthesize': Force synthesis of a final answer now.\n")
	sb.WriteString("  'e' / 'edit': Replace the plan (e.g. 'e SCADA: Get X, MANUAL: Search Y').\n")
	sb.WriteString("  'q' / 'quit': Abort the workflow.\n")
	sb.WriteString("Your decision (c/s/e/q): ")
	return sb.String()
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "No result"
	}
	r := []rune(s)
	if len(r) <= previewLen {
		return s
	}
	return string(r[:previewLen]) + "..."
}

// ChatGate is the interactive gate over any messenger.
type ChatGate struct {
	Messenger Messenger
	// Timeout bounds one review. Zero waits until ctx ends.
	Timeout time.Duration
}

func NewChatGate(m Messenger, timeout time.Duration) *ChatGate {
	return &ChatGate{Messenger: m, Timeout: timeout}
}

// Review shows the snapshot and waits for a valid command. Any error,
// including a timeout or a closed channel, is returned to the orchestrator,
// which treats it as an operator abort.
func (g *ChatGate) Review(ctx context.Context, snapshot agent.State, proposal agent.Decision) (agent.FinalDecision, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	if err := g.prompt(ctx, RenderReview(snapshot, proposal)); err != nil {
		return agent.FinalDecision{}, err
	}

	for {
		line, err := g.receive(ctx)
		if err != nil {
			return agent.FinalDecision{}, err
		}

		cmd, err := ParseCommand(line)
		if err != nil {
			if err := g.prompt(ctx, err.Error()); err != nil {
				return agent.FinalDecision{}, err
			}
			continue
		}

		if cmd.Kind == CmdEdit && len(cmd.Steps) == 0 {
			if err := g.prompt(ctx, "Enter new plan steps (comma-separated, e.g., 'SCADA: Get X, MANUAL: Search Y'): "); err != nil {
				return agent.FinalDecision{}, err
			}
			line, err := g.receive(ctx)
			if err != nil {
				return agent.FinalDecision{}, err
			}
			steps, err := agent.ParseStepList(line)
			if err != nil {
				if err := g.prompt(ctx, fmt.Sprintf("Could not parse plan: %v", err)); err != nil {
					return agent.FinalDecision{}, err
				}
				continue
			}
			if len(steps) == 0 {
				if err := g.prompt(ctx, "The new plan is empty. Use 's' to synthesize instead."); err != nil {
					return agent.FinalDecision{}, err
				}
				continue
			}
			cmd.Steps = steps
		}

		return Resolve(cmd, snapshot, proposal), nil
	}
}

// prompt sends text to the operator. A review the operator cannot see
// cannot be answered, so failures end it.
func (g *ChatGate) prompt(ctx context.Context, text string) error {
	if err := g.Messenger.Send(ctx, text); err != nil {
		return fmt.Errorf("failed to send review prompt: %w", err)
	}
	return nil
}

func (g *ChatGate) receive(ctx context.Context) (string, error) {
	line, err := g.Messenger.Receive(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && g.Timeout > 0 {
		return "", fmt.Errorf("no operator decision within %s", g.Timeout)
	}
	return line, err
}

package agent

import "context"

// Gate is the human override point consulted once per iteration. It has the
// last word over the replan proposal.
type Gate interface {
	Review(ctx context.Context, snapshot State, proposal Decision) (FinalDecision, error)
}

// AutoGate stands in for the operator in headless runs. It accepts every
// proposal, except that on the last allowed iteration it asks for synthesis
// instead of another cycle when there is material to synthesize from.
type AutoGate struct {
	MaxIterations int
}

func (g AutoGate) Review(ctx context.Context, snapshot State, proposal Decision) (FinalDecision, error) {
	if err := ctx.Err(); err != nil {
		return FinalDecision{Action: ActionAbort, Kind: KindHumanAbort, Reason: "review cancelled"}, nil
	}
	atCap := g.MaxIterations > 0 && snapshot.Iteration+1 >= g.MaxIterations
	if atCap && snapshot.Succeeded() > 0 {
		switch proposal.Action {
		case ActionContinue, ActionInsert:
			return FinalDecision{Action: ActionSynthesize, Reason: "iteration cap reached in unattended mode"}, nil
		case ActionAbort:
			if proposal.Kind == KindIterationLimit {
				return FinalDecision{Action: ActionSynthesize, Reason: "iteration cap reached in unattended mode"}, nil
			}
		}
	}
	return Accept(proposal, snapshot), nil
}

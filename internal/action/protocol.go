package action

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/t77yq/hostwatch/internal/metrics"
	"github.com/t77yq/hostwatch/internal/model"
)

// Executor performs a confirmed action. Implementations live outside this
// package; the protocol only cares about the result it can show the operator.
type Executor interface {
	Execute(ctx context.Context, kind model.ActionKind, payload string) model.ActionResult
}

// Proposal is a candidate action to surface as a button.
type Proposal struct {
	Kind    model.ActionKind
	Payload string
	Label   string
}

// Button is a rendered action reference: a label plus the token that comes
// back when the operator presses it.
type Button struct {
	Label string `json:"label"`
	Token string `json:"token"`
}

// Outcome is the protocol's reply to one inbound event. When Buttons is
// non-empty the message needs the interactive renderer.
type Outcome struct {
	Text    string
	Buttons []Button
}

// Protocol is the per-token state machine protecting destructive actions
// behind a two-step confirmation. A single inline button press never directly
// causes data loss: the first press re-renders a yes/no prompt bound to a
// derived token, and only the derived token can execute.
type Protocol struct {
	logger *zap.Logger
	store  *Store
	exec   Executor

	// roots are the only directories delete actions may touch.
	roots []string
}

// NewProtocol creates a confirmation protocol around the given store and
// executor.
func NewProtocol(logger *zap.Logger, store *Store, exec Executor, roots []string) *Protocol {
	return &Protocol{
		logger: logger.Named("confirm"),
		store:  store,
		exec:   exec,
		roots:  roots,
	}
}

// IssueBatch allocates one token per proposal under a fresh batch id and
// returns the buttons to render. Tokens advance to awaiting-confirmation as
// soon as they are handed to the caller for rendering.
func (p *Protocol) IssueBatch(proposals []Proposal) []Button {
	if len(proposals) == 0 {
		return nil
	}

	batch := p.store.NextBatch()
	buttons := make([]Button, 0, len(proposals))

	for i, proposal := range proposals {
		token := fmt.Sprintf("%s:%d:%d", proposal.Kind, batch, i)
		p.store.Put(&model.PendingAction{
			Token:   token,
			Kind:    proposal.Kind,
			Payload: proposal.Payload,
			Label:   proposal.Label,
			BatchID: batch,
			State:   model.ActionStateCreated,
		})
		if err := p.store.Transition(token, model.ActionStateCreated, model.ActionStateAwaiting); err != nil {
			// Only possible if reclamation raced the put; skip the button.
			p.logger.Warn("Token reclaimed before rendering", zap.String("token", token))
			continue
		}
		buttons = append(buttons, Button{Label: proposal.Label, Token: token})
	}

	p.logger.Info("Issued action batch",
		zap.Uint64("batch", batch),
		zap.Int("count", len(buttons)))
	return buttons
}

// HandleInvocation resolves one inbound button press. Unknown, expired, or
// already-resolved tokens always produce an explicit outcome, never a silent
// success or a second execution.
func (p *Protocol) HandleInvocation(ctx context.Context, token string) Outcome {
	act, ok := p.store.Get(token)
	if !ok || act.State.Terminal() {
		metrics.ActionsTotal.WithLabelValues("expired").Inc()
		return Outcome{Text: "⌛ This action has expired. Request a fresh list."}
	}

	switch act.State {
	case model.ActionStateAwaiting:
		if act.Kind == model.ActionCancel {
			return p.cancel(act)
		}
		return p.askConfirmation(act)

	case model.ActionStateConfirmed:
		return p.execute(ctx, act)

	default:
		// Created is never observable externally; anything else is a stale
		// replay.
		metrics.ActionsTotal.WithLabelValues("expired").Inc()
		return Outcome{Text: "⌛ This action has expired. Request a fresh list."}
	}
}

// askConfirmation supersedes the pressed token and mints a derived
// confirm/cancel pair bound to the same payload. Replaying the original
// token afterwards resolves as expired.
func (p *Protocol) askConfirmation(act model.PendingAction) Outcome {
	if err := p.store.Transition(act.Token, model.ActionStateAwaiting, model.ActionStateSuperseded); err != nil {
		metrics.ActionsTotal.WithLabelValues("expired").Inc()
		return Outcome{Text: "⌛ This action has expired. Request a fresh list."}
	}

	suffix := batchSuffix(act.Token)
	confirmToken := "confirm:" + suffix
	cancelToken := "cancel:" + suffix

	p.store.Put(&model.PendingAction{
		Token:   confirmToken,
		Kind:    act.Kind,
		Payload: act.Payload,
		Label:   act.Label,
		BatchID: act.BatchID,
		State:   model.ActionStateConfirmed,
		Sibling: cancelToken,
	})
	p.store.Put(&model.PendingAction{
		Token:   cancelToken,
		Kind:    model.ActionCancel,
		Payload: act.Payload,
		BatchID: act.BatchID,
		State:   model.ActionStateAwaiting,
		Sibling: confirmToken,
	})

	p.logger.Info("Confirmation requested",
		zap.String("kind", string(act.Kind)),
		zap.String("payload", act.Payload))

	return Outcome{
		Text: fmt.Sprintf("⚠️ Are you sure you want to %s:\n%s", act.Kind, act.Payload),
		Buttons: []Button{
			{Label: "✅ Yes, do it", Token: confirmToken},
			{Label: "❌ Cancel", Token: cancelToken},
		},
	}
}

// execute claims the derived token exactly once, runs the safety check for
// destructive filesystem actions, and invokes the executor. The token is
// terminally handled whatever the executor reports; nothing is retried.
func (p *Protocol) execute(ctx context.Context, act model.PendingAction) Outcome {
	claimed, err := p.store.Claim(act.Token, model.ActionStateConfirmed, model.ActionStateExecuted)
	if err != nil {
		metrics.ActionsTotal.WithLabelValues("expired").Inc()
		return Outcome{Text: "⌛ This action has expired. Request a fresh list."}
	}
	defer p.store.Remove(claimed.Token, claimed.Sibling)

	if claimed.Kind == model.ActionDelete {
		if err := CheckContained(claimed.Payload, p.roots); err != nil {
			p.logger.Warn("Safety check rejected action",
				zap.String("target", claimed.Payload),
				zap.Error(err))
			metrics.ActionsTotal.WithLabelValues("rejected").Inc()
			if errors.Is(err, ErrTargetMissing) {
				return Outcome{Text: fmt.Sprintf("❌ Path does not exist: %s", claimed.Payload)}
			}
			return Outcome{Text: fmt.Sprintf("🛑 Refused: %s is not within the allowed roots", claimed.Payload)}
		}
	}

	result := p.exec.Execute(ctx, claimed.Kind, claimed.Payload)
	if result.OK {
		p.logger.Info("Action executed",
			zap.String("kind", string(claimed.Kind)),
			zap.String("payload", claimed.Payload))
		metrics.ActionsTotal.WithLabelValues("executed").Inc()
		return Outcome{Text: "✅ " + result.Message}
	}

	p.logger.Error("Action failed",
		zap.String("kind", string(claimed.Kind)),
		zap.String("payload", claimed.Payload),
		zap.String("message", result.Message))
	metrics.ActionsTotal.WithLabelValues("failed").Inc()
	return Outcome{Text: "❌ " + result.Message}
}

// cancel resolves a cancel token and its confirm sibling together.
func (p *Protocol) cancel(act model.PendingAction) Outcome {
	if err := p.store.Transition(act.Token, model.ActionStateAwaiting, model.ActionStateCancelled); err != nil {
		metrics.ActionsTotal.WithLabelValues("expired").Inc()
		return Outcome{Text: "⌛ This action has expired. Request a fresh list."}
	}
	if act.Sibling != "" {
		// Best effort: the sibling may already have been claimed.
		_ = p.store.Transition(act.Sibling, model.ActionStateConfirmed, model.ActionStateCancelled)
	}
	p.store.Remove(act.Token, act.Sibling)

	p.logger.Info("Action cancelled", zap.String("payload", act.Payload))
	metrics.ActionsTotal.WithLabelValues("cancelled").Inc()
	return Outcome{Text: "🚫 Cancelled. Nothing was changed."}
}

// batchSuffix extracts the "<batch>:<idx>" identity from a token.
func batchSuffix(token string) string {
	parts := strings.Split(token, ":")
	if len(parts) < 3 {
		return token
	}
	return strings.Join(parts[len(parts)-2:], ":")
}

package session

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-survey/backend/internal/model/chat"
	"github.com/zhouzirui/z-survey/backend/internal/protocol"
)

// Regeneration holds the target of the single-question sub-flow. The target
// stays set from SelectQuestion until the regeneration completes or aborts.
type Regeneration struct {
	target   int
	pending  bool
	feedback string
}

func (r *Regeneration) Select(index int) {
	r.target = index
	r.pending = true
	r.feedback = ""
}

func (r *Regeneration) Target() (int, bool) {
	return r.target, r.pending
}

func (r *Regeneration) SetFeedback(feedback string) {
	r.feedback = feedback
}

func (r *Regeneration) Feedback() string { return r.feedback }

func (r *Regeneration) Clear() {
	*r = Regeneration{}
}

// SelectQuestion opens the feedback sub-flow for the question at index.
func (s *Session) SelectQuestion(index int) error {
	return s.apply(func() error {
		if s.phase != PhaseDone {
			return s.reject(ErrInvalidPhase, "Wait for the current request to finish before regenerating a question.")
		}
		if s.draft == nil || !s.draft.HasQuestion(index) {
			return s.reject(ErrInvalidTarget, fmt.Sprintf("Question %d does not exist.", index+1))
		}

		s.regen.Select(index)
		s.phase = PhaseAwaitingFeedback
		return nil
	})
}

// CancelFeedback closes the sub-flow without sending anything.
func (s *Session) CancelFeedback() error {
	return s.apply(func() error {
		if s.phase != PhaseAwaitingFeedback {
			return s.reject(ErrInvalidPhase, "No question is selected for regeneration.")
		}

		s.regen.Clear()
		s.phase = PhaseDone
		return nil
	})
}

// SubmitFeedback sends exactly one regenerate_question for the selected
// question. Blank feedback is replaced with the configured default.
func (s *Session) SubmitFeedback(feedback string) error {
	return s.apply(func() error {
		if s.phase != PhaseAwaitingFeedback {
			return s.reject(ErrInvalidPhase, "No question is selected for regeneration.")
		}
		if !s.connectedLocked() {
			return s.reject(ErrNotConnected, "Connection lost. Please reload to start a new session.")
		}

		index, _ := s.regen.Target()
		if s.draft == nil {
			s.regen.Clear()
			s.phase = PhaseDone
			return s.reject(ErrInvalidDraftState, "There is no survey to regenerate.")
		}
		if err := s.draft.Validate(); err != nil {
			s.regen.Clear()
			s.phase = PhaseDone
			return s.reject(fmt.Errorf("%w: %v", ErrInvalidDraftState, err), "The current survey is incomplete and cannot be regenerated.")
		}

		feedback = strings.TrimSpace(feedback)
		if feedback == "" {
			feedback = s.cfg.DefaultFeedback
		}

		if err := s.conn.Send(protocol.RegenerateQuestion(*s.draft, index, feedback)); err != nil {
			return s.sendFailed(err)
		}

		s.regen.SetFeedback(feedback)
		s.transcript.Append(chat.RoleUser, fmt.Sprintf("Regenerate question %d: %s", index+1, feedback))
		s.acc.Begin()
		s.notice = ""
		s.phase = PhaseRegenerating
		s.logger.Info("regeneration requested", zap.Int("question_index", index))
		return nil
	})
}

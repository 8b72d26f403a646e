package session

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-survey/backend/internal/model/chat"
	"github.com/zhouzirui/z-survey/backend/internal/protocol"
)

// Inbound handlers. They run inside apply with the state lock held.

func (s *Session) stale(env protocol.Envelope) {
	s.logger.Debug("discarding stale frame",
		zap.String("type", string(env.Type)),
		zap.Stringer("phase", s.phase),
		zap.Uint64("op", s.acc.Op()),
	)
}

func (s *Session) onConnectionEstablished(env protocol.Envelope) {
	s.logger.Info("server ready", zap.String("message", env.Message))
}

func (s *Session) onGenerationStarted(env protocol.Envelope) {
	if s.phase != PhaseGenerating {
		s.stale(env)
		return
	}
	msg := env.Message
	if msg == "" {
		msg = "Generating your survey..."
	}
	s.transcript.Append(chat.RoleAssistant, msg)
}

func (s *Session) onGenerationChunk(env protocol.Envelope) {
	if s.phase != PhaseGenerating || !s.acc.Append(env.Content) {
		s.stale(env)
	}
}

func (s *Session) onGenerationComplete(env protocol.Envelope) {
	if s.phase != PhaseGenerating {
		s.stale(env)
		return
	}

	draft := env.Survey.Clone()
	s.draft = &draft
	s.acc.Finish()
	s.save.Invalidate()
	s.lastRegenerated = -1
	s.phase = PhaseDone
	s.transcript.Append(chat.RoleAssistant, fmt.Sprintf(
		"Survey %q is ready with %d questions. You can regenerate any question or save the survey.",
		draft.Title, len(draft.Questions),
	))
	s.logger.Info("generation complete", zap.String("title", draft.Title), zap.Int("questions", len(draft.Questions)))
}

func (s *Session) onRegenerationStarted(env protocol.Envelope) {
	if s.phase != PhaseRegenerating {
		s.stale(env)
		return
	}
	index, _ := s.regen.Target()
	if env.QuestionIndex != nil {
		index = *env.QuestionIndex
	}
	msg := env.Message
	if msg == "" {
		msg = fmt.Sprintf("Regenerating question %d...", index+1)
	}
	s.transcript.Append(chat.RoleAssistant, msg)
}

func (s *Session) onRegenerationComplete(env protocol.Envelope) {
	if s.phase != PhaseRegenerating {
		s.stale(env)
		return
	}

	index := *env.RegeneratedIndex
	if target, ok := s.regen.Target(); ok && target != index {
		s.logger.Warn("regenerated index differs from request", zap.Int("requested", target), zap.Int("regenerated", index))
	}

	draft := env.Survey.Clone()
	s.draft = &draft
	s.acc.Finish()
	s.save.Invalidate()
	s.regen.Clear()
	s.lastRegenerated = index
	s.phase = PhaseDone
	s.transcript.Append(chat.RoleAssistant, fmt.Sprintf("Question %d has been regenerated.", index+1))
	s.logger.Info("regeneration complete", zap.Int("question_index", index))
}

// onSurveySaved accepts the acknowledgment whenever it arrives.
func (s *Session) onSurveySaved(env protocol.Envelope) {
	s.save.Confirm(*env.SurveyData)
	msg := env.Message
	if msg == "" {
		msg = fmt.Sprintf("Survey %q has been saved successfully!", env.SurveyData.Title)
	}
	s.transcript.Append(chat.RoleAssistant, msg)
	s.logger.Info("survey saved", zap.Int64("survey_id", env.SurveyData.ID), zap.String("public_id", env.SurveyData.PublicID))
}

// onError attributes the error to a pending save first: the server answers
// requests in order and a save is only sent while no other request is in
// flight, so the oldest outstanding request is the save. A failed
// regeneration returns to Done with the previous draft; a failed generation
// moves to Errored.
func (s *Session) onError(env protocol.Envelope) {
	msg := env.Message
	if msg == "" {
		msg = "Unknown error"
	}
	s.transcript.Append(chat.RoleAssistant, "Error: "+msg)

	switch {
	case s.save.Status().State == SaveSaving:
		s.save.Fail()
	case (s.phase == PhaseRegenerating || s.phase == PhaseAwaitingFeedback) && s.draft != nil:
		// The previous draft is still whole; keep it usable.
		s.acc.Finish()
		s.regen.Clear()
		s.phase = PhaseDone
	case s.phase.Active():
		s.acc.Finish()
		s.regen.Clear()
		s.phase = PhaseErrored
	}
	s.logger.Warn("server error", zap.String("message", msg), zap.Stringer("phase", s.phase))
}

// disconnectLocked moves to the terminal phase. Repeated calls only log.
func (s *Session) disconnectLocked(msg string) {
	if s.phase == PhaseDisconnected {
		return
	}
	s.connected = false
	s.acc.Finish()
	s.regen.Clear()
	s.save.Fail()
	s.phase = PhaseDisconnected
	s.transcript.Append(chat.RoleAssistant, msg)
}

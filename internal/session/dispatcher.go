package session

import (
	"go.uber.org/zap"

	"github.com/zhouzirui/z-survey/backend/internal/protocol"
)

// handleEvent applies one connection event.
func (s *Session) handleEvent(ev Event) {
	switch ev.Kind {
	case EventOpened:
		s.logger.Debug("connection open")
	case EventMessage:
		s.dispatch(ev.Raw)
	case EventTransportError:
		_ = s.apply(func() error {
			s.disconnectLocked("Connection error. Please reload to start a new session.")
			s.logger.Warn("transport error", zap.Error(ev.Err))
			return nil
		})
	case EventClosed:
		_ = s.apply(func() error {
			s.disconnectLocked("Connection closed. Please reload to start a new session.")
			return nil
		})
	}
}

// dispatch decodes a raw frame and routes it by type. Undecodable frames
// and unknown types leave the session untouched.
func (s *Session) dispatch(raw []byte) {
	env, err := protocol.Decode(raw)
	if err != nil {
		s.logger.Warn("dropping malformed frame", zap.Error(err), zap.Int("size", len(raw)))
		return
	}

	var handler func(protocol.Envelope)
	switch env.Type {
	case protocol.TypeConnectionEstablished:
		handler = s.onConnectionEstablished
	case protocol.TypeGenerationStarted:
		handler = s.onGenerationStarted
	case protocol.TypeGenerationChunk:
		handler = s.onGenerationChunk
	case protocol.TypeGenerationComplete:
		handler = s.onGenerationComplete
	case protocol.TypeRegenerationStarted:
		handler = s.onRegenerationStarted
	case protocol.TypeRegenerationComplete:
		handler = s.onRegenerationComplete
	case protocol.TypeSurveySaved:
		handler = s.onSurveySaved
	case protocol.TypeError:
		handler = s.onError
	default:
		s.logger.Debug("ignoring unknown frame type", zap.String("type", string(env.Type)))
		return
	}

	_ = s.apply(func() error {
		handler(env)
		return nil
	})
}

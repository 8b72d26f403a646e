// Package protocol defines the JSON envelopes exchanged over the survey
// generation WebSocket. Both the operator session and the reference server
// encode and decode frames through this package.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zhouzirui/z-survey/backend/internal/model/survey"
)

// ErrMalformed is returned by Decode for frames that are not usable envelopes.
var ErrMalformed = errors.New("malformed envelope")

// Type is the envelope tag carried in the "type" field.
type Type string

// Client → server.
const (
	TypeGenerateSurvey     Type = "generate_survey"
	TypeRegenerateQuestion Type = "regenerate_question"
	TypeSaveSurvey         Type = "save_survey"
)

// Server → client.
const (
	TypeConnectionEstablished Type = "connection_established"
	TypeGenerationStarted     Type = "generation_started"
	TypeGenerationChunk       Type = "generation_chunk"
	TypeGenerationComplete    Type = "generation_complete"
	TypeRegenerationStarted   Type = "regeneration_started"
	TypeRegenerationComplete  Type = "regeneration_complete"
	TypeSurveySaved           Type = "survey_saved"
	TypeError                 Type = "error"
)

// Known reports whether t is part of the protocol.
func (t Type) Known() bool {
	switch t {
	case TypeGenerateSurvey, TypeRegenerateQuestion, TypeSaveSurvey,
		TypeConnectionEstablished, TypeGenerationStarted, TypeGenerationChunk,
		TypeGenerationComplete, TypeRegenerationStarted, TypeRegenerationComplete,
		TypeSurveySaved, TypeError:
		return true
	default:
		return false
	}
}

// SavedSurvey is the acknowledgment payload of survey_saved.
type SavedSurvey struct {
	ID       int64  `json:"id"`
	PublicID string `json:"public_id,omitempty"`
	Title    string `json:"title"`
}

// Envelope is the union of every frame shape; only the fields of Type are set.
type Envelope struct {
	Type             Type          `json:"type"`
	Message          string        `json:"message,omitempty"`
	Prompt           string        `json:"prompt,omitempty"`
	NumQuestions     int           `json:"num_questions,omitempty"`
	Template         string        `json:"template,omitempty"`
	Stream           *bool         `json:"stream,omitempty"`
	Content          string        `json:"content,omitempty"`
	Survey           *survey.Draft `json:"survey,omitempty"`
	QuestionIndex    *int          `json:"question_index,omitempty"`
	RegeneratedIndex *int          `json:"regenerated_index,omitempty"`
	Feedback         string        `json:"feedback,omitempty"`
	SurveyData       *SavedSurvey  `json:"survey_data,omitempty"`
}

// StreamRequested reports whether a generate_survey request asked for streaming.
// Absent means yes.
func (e Envelope) StreamRequested() bool {
	return e.Stream == nil || *e.Stream
}

// Decode parses one raw frame. Known server frames are checked for the
// fields their handlers depend on; unknown types decode successfully so the
// caller can decide to ignore them.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch env.Type {
	case TypeGenerationComplete:
		if env.Survey == nil {
			return Envelope{}, fmt.Errorf("%w: %s without survey", ErrMalformed, env.Type)
		}
	case TypeRegenerationComplete:
		if env.Survey == nil || env.RegeneratedIndex == nil {
			return Envelope{}, fmt.Errorf("%w: %s without survey or index", ErrMalformed, env.Type)
		}
	case TypeSurveySaved:
		if env.SurveyData == nil {
			return Envelope{}, fmt.Errorf("%w: %s without survey_data", ErrMalformed, env.Type)
		}
	case TypeRegenerateQuestion:
		if env.Survey == nil || env.QuestionIndex == nil {
			return Envelope{}, fmt.Errorf("%w: %s without survey or question_index", ErrMalformed, env.Type)
		}
	case TypeSaveSurvey:
		if env.Survey == nil {
			return Envelope{}, fmt.Errorf("%w: %s without survey", ErrMalformed, env.Type)
		}
	}

	return env, nil
}

// Encode marshals an envelope to a text frame.
func Encode(env Envelope) ([]byte, error) {
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return json.Marshal(env)
}

func intPtr(v int) *int { return &v }

func draftPtr(d survey.Draft) *survey.Draft {
	c := d.Clone()
	return &c
}

// GenerateSurvey builds the streaming generation request.
func GenerateSurvey(prompt string, numQuestions int, template string) Envelope {
	stream := true
	return Envelope{
		Type:         TypeGenerateSurvey,
		Prompt:       prompt,
		NumQuestions: numQuestions,
		Template:     template,
		Stream:       &stream,
	}
}

// RegenerateQuestion carries the full draft so the server has complete context.
func RegenerateQuestion(d survey.Draft, index int, feedback string) Envelope {
	return Envelope{
		Type:          TypeRegenerateQuestion,
		Survey:        draftPtr(d),
		QuestionIndex: intPtr(index),
		Feedback:      feedback,
	}
}

// SaveSurvey asks the server to persist the draft.
func SaveSurvey(d survey.Draft, prompt string) Envelope {
	return Envelope{Type: TypeSaveSurvey, Survey: draftPtr(d), Prompt: prompt}
}

func ConnectionEstablished(message string) Envelope {
	return Envelope{Type: TypeConnectionEstablished, Message: message}
}

func GenerationStarted(message string) Envelope {
	return Envelope{Type: TypeGenerationStarted, Message: message}
}

func GenerationChunk(content string) Envelope {
	return Envelope{Type: TypeGenerationChunk, Content: content}
}

func GenerationComplete(d survey.Draft) Envelope {
	return Envelope{Type: TypeGenerationComplete, Survey: draftPtr(d)}
}

func RegenerationStarted(index int, message string) Envelope {
	return Envelope{Type: TypeRegenerationStarted, QuestionIndex: intPtr(index), Message: message}
}

func RegenerationComplete(d survey.Draft, index int) Envelope {
	return Envelope{Type: TypeRegenerationComplete, Survey: draftPtr(d), RegeneratedIndex: intPtr(index)}
}

func SurveySaved(saved SavedSurvey, message string) Envelope {
	return Envelope{Type: TypeSurveySaved, SurveyData: &saved, Message: message}
}

func Error(message string) Envelope {
	return Envelope{Type: TypeError, Message: message}
}

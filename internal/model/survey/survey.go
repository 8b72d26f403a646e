package survey

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDraft marks a draft that cannot be used as a structured survey document.
var ErrInvalidDraft = errors.New("invalid survey draft")

// QuestionType 问题类型，取值与协议中的字符串保持一致。
type QuestionType string

const (
	QuestionText     QuestionType = "text"
	QuestionRadio    QuestionType = "radio"
	QuestionCheckbox QuestionType = "checkbox"
	QuestionDropdown QuestionType = "dropdown"
)

// Valid reports whether t is one of the supported question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionText, QuestionRadio, QuestionCheckbox, QuestionDropdown:
		return true
	default:
		return false
	}
}

// HasOptions reports whether answers to this question type are chosen from options.
func (t QuestionType) HasOptions() bool {
	return t == QuestionRadio || t == QuestionCheckbox || t == QuestionDropdown
}

// SingleSelect reports whether at most one option may be chosen.
func (t QuestionType) SingleSelect() bool {
	return t == QuestionRadio || t == QuestionDropdown
}

// Option is one selectable answer of a choice question.
type Option struct {
	ID   int64  `json:"id,omitempty"`
	Text string `json:"text"`
}

// Question is a single survey question. Its index is its position in Draft.Questions.
type Question struct {
	Text     string       `json:"text"`
	Type     QuestionType `json:"type"`
	Required bool         `json:"required"`
	Options  []Option     `json:"options,omitempty"`
}

// Draft is the full survey document produced by the generation server.
type Draft struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions"`
}

// Clone returns a deep copy so callers can hand drafts out without sharing slices.
func (d Draft) Clone() Draft {
	out := Draft{Title: d.Title, Description: d.Description}
	if d.Questions != nil {
		out.Questions = make([]Question, len(d.Questions))
		for i, q := range d.Questions {
			out.Questions[i] = q
			if q.Options != nil {
				out.Questions[i].Options = append([]Option(nil), q.Options...)
			}
		}
	}
	return out
}

// Validate checks the draft is a usable survey document.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidDraft)
	}
	if len(d.Questions) == 0 {
		return fmt.Errorf("%w: at least one question is required", ErrInvalidDraft)
	}
	for i, q := range d.Questions {
		if err := q.validate(); err != nil {
			return fmt.Errorf("%w: question %d: %s", ErrInvalidDraft, i+1, err.Error())
		}
	}
	return nil
}

// HasQuestion reports whether index addresses an existing question.
func (d Draft) HasQuestion(index int) bool {
	return index >= 0 && index < len(d.Questions)
}

// WithQuestion returns a copy of the draft where the question at index is replaced.
func (d Draft) WithQuestion(index int, q Question) (Draft, error) {
	if !d.HasQuestion(index) {
		return Draft{}, fmt.Errorf("invalid question index: %d, survey has %d questions", index, len(d.Questions))
	}
	out := d.Clone()
	out.Questions[index] = q
	return out, nil
}

func (q Question) validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return errors.New("text is required")
	}
	if !q.Type.Valid() {
		return fmt.Errorf("unsupported type %q", q.Type)
	}
	if q.Type.HasOptions() && len(q.Options) == 0 {
		return fmt.Errorf("%s question needs options", q.Type)
	}
	for j, opt := range q.Options {
		if strings.TrimSpace(opt.Text) == "" {
			return fmt.Errorf("option %d text is required", j+1)
		}
	}
	return nil
}

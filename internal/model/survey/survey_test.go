package survey

import (
	"errors"
	"testing"
)

func sampleDraft() Draft {
	return Draft{
		Title:       "Customer satisfaction",
		Description: "How did we do?",
		Questions: []Question{
			{Text: "How satisfied are you?", Type: QuestionRadio, Required: true, Options: []Option{{Text: "Very"}, {Text: "Not at all"}}},
			{Text: "What could be better?", Type: QuestionText},
			{Text: "Which channels do you use?", Type: QuestionCheckbox, Options: []Option{{Text: "Email"}, {Text: "Phone"}}},
		},
	}
}

func TestValidateAcceptsWellFormedDraft(t *testing.T) {
	if err := sampleDraft().Validate(); err != nil {
		t.Fatalf("expected valid draft, got %v", err)
	}
}

func TestValidateRejectsChoiceWithoutOptions(t *testing.T) {
	d := sampleDraft()
	d.Questions[0].Options = nil

	err := d.Validate()
	if !errors.Is(err, ErrInvalidDraft) {
		t.Fatalf("expected ErrInvalidDraft, got %v", err)
	}
}

func TestValidateRejectsUnknownType(t *testing.T) {
	d := sampleDraft()
	d.Questions[1].Type = "slider"

	if err := d.Validate(); !errors.Is(err, ErrInvalidDraft) {
		t.Fatalf("expected ErrInvalidDraft, got %v", err)
	}
}

func TestValidateRejectsEmptyDraft(t *testing.T) {
	if err := (Draft{Title: "x"}).Validate(); !errors.Is(err, ErrInvalidDraft) {
		t.Fatalf("expected ErrInvalidDraft, got %v", err)
	}
}

func TestCloneDoesNotShareOptions(t *testing.T) {
	d := sampleDraft()
	c := d.Clone()
	c.Questions[0].Options[0].Text = "changed"

	if d.Questions[0].Options[0].Text != "Very" {
		t.Fatalf("clone mutated original: %q", d.Questions[0].Options[0].Text)
	}
}

func TestWithQuestionReplacesOnlyTarget(t *testing.T) {
	d := sampleDraft()
	replaced, err := d.WithQuestion(1, Question{Text: "Pick one", Type: QuestionDropdown, Options: []Option{{Text: "A"}}})
	if err != nil {
		t.Fatalf("WithQuestion err: %v", err)
	}
	if replaced.Questions[1].Type != QuestionDropdown {
		t.Fatalf("expected dropdown, got %s", replaced.Questions[1].Type)
	}
	if replaced.Questions[0].Text != d.Questions[0].Text || replaced.Questions[2].Text != d.Questions[2].Text {
		t.Fatal("other questions changed")
	}
	if d.Questions[1].Type != QuestionText {
		t.Fatal("original draft mutated")
	}

	if _, err := d.WithQuestion(3, Question{}); err == nil {
		t.Fatal("expected error for out of range index")
	}
}

package ai

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/z-survey/backend/internal/config"
	"github.com/zhouzirui/z-survey/backend/internal/model/survey"
)

type fakeChatModel struct {
	mu       sync.Mutex
	reply    string
	chunks   []string
	received [][]*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.record(input)
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.record(input)
	msgs := make([]*schema.Message, 0, len(f.chunks))
	for _, c := range f.chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func (f *fakeChatModel) BindTools([]*schema.ToolInfo) error { return nil }

func (f *fakeChatModel) record(input []*schema.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, input)
}

func (f *fakeChatModel) lastInput() []*schema.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.received[len(f.received)-1]
}

const draftJSON = `{"title":"Coffee Habits","description":"About coffee","questions":[
{"text":"How many cups a day?","type":"radio","required":true,"options":[{"text":"0"},{"text":"1-2"},{"text":"3+"}]},
{"text":"Favourite roast?","type":"dropdown","required":false,"options":[{"text":"Light"},{"text":"Dark"}]},
{"text":"Anything else?","type":"text","required":false}]}`

func newTestService(t *testing.T, fake *fakeChatModel) *Service {
	t.Helper()
	svc, err := NewServiceWithModel(context.Background(), fake, config.AIConfig{StreamResponse: true, Language: "en"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return svc
}

func TestGenerateParsesDraft(t *testing.T) {
	fake := &fakeChatModel{reply: "```json\n" + draftJSON + "\n```"}
	svc := newTestService(t, fake)

	draft, err := svc.Generate(context.Background(), Request{Prompt: "coffee", NumQuestions: 3, Template: "market_research"})
	require.NoError(t, err)
	assert.Equal(t, "Coffee Habits", draft.Title)
	assert.Len(t, draft.Questions, 3)

	input := fake.lastInput()
	require.Len(t, input, 2)
	assert.Equal(t, schema.System, input[0].Role)
	assert.Contains(t, input[0].Content, "market research survey")
	assert.Contains(t, input[0].Content, "Generate exactly 3 questions")
	assert.Equal(t, "Create a survey about: coffee", input[1].Content)
}

func TestGenerateStreamYieldsDeltas(t *testing.T) {
	half := len(draftJSON) / 2
	fake := &fakeChatModel{chunks: []string{draftJSON[:half], "", draftJSON[half:]}}
	svc := newTestService(t, fake)

	stream, err := svc.GenerateStream(context.Background(), Request{Prompt: "coffee"})
	require.NoError(t, err)

	var deltas []string
	text, err := Collect(stream, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, draftJSON, text)
	assert.Equal(t, []string{draftJSON[:half], draftJSON[half:]}, deltas)

	_, err = ParseDraft(text)
	require.NoError(t, err)
}

func TestGenerateStreamDisabled(t *testing.T) {
	svc, err := NewServiceWithModel(context.Background(), &fakeChatModel{}, config.AIConfig{}, nil)
	require.NoError(t, err)

	_, err = svc.GenerateStream(context.Background(), Request{Prompt: "x"})
	require.ErrorIs(t, err, ErrStreamDisabled)
}

func TestRegenerateQuestionReplacesOnlyTarget(t *testing.T) {
	original, err := ParseDraft(draftJSON)
	require.NoError(t, err)

	fake := &fakeChatModel{reply: `{"text":"Which roasts do you enjoy?","type":"checkbox","options":[{"text":"Light"},{"text":"Medium"},{"text":"Dark"}]}`}
	svc := newTestService(t, fake)

	updated, err := svc.RegenerateQuestion(context.Background(), original, 1, "make it multiple choice")
	require.NoError(t, err)

	assert.Equal(t, survey.QuestionCheckbox, updated.Questions[1].Type)
	assert.Len(t, updated.Questions[1].Options, 3)
	assert.Equal(t, original.Questions[0], updated.Questions[0])
	assert.Equal(t, original.Questions[2], updated.Questions[2])
	assert.Equal(t, survey.QuestionDropdown, original.Questions[1].Type, "input draft must not change")

	system := fake.lastInput()[0].Content
	assert.Contains(t, system, "regenerate question 2")
	assert.Contains(t, system, `"make it multiple choice"`)
	assert.Contains(t, system, "Question 1: How many cups a day?")
	assert.NotContains(t, system, "Question 2: Favourite roast?")
}

func TestRegenerateQuestionRejectsChoiceWithoutOptions(t *testing.T) {
	original, err := ParseDraft(draftJSON)
	require.NoError(t, err)

	svc := newTestService(t, &fakeChatModel{reply: `{"text":"Pick one","type":"radio"}`})

	_, err = svc.RegenerateQuestion(context.Background(), original, 2, "make it a choice")
	require.ErrorIs(t, err, ErrInvalidResponse)
	require.ErrorIs(t, err, survey.ErrInvalidDraft)
}

func TestRegenerateQuestionRejectsBadIndex(t *testing.T) {
	svc := newTestService(t, &fakeChatModel{})
	draft, err := ParseDraft(draftJSON)
	require.NoError(t, err)

	_, err = svc.RegenerateQuestion(context.Background(), draft, 3, "")
	require.ErrorIs(t, err, ErrInvalidIndex)
}

func TestParseDraftErrors(t *testing.T) {
	_, err := ParseDraft("I cannot do that")
	require.ErrorIs(t, err, ErrInvalidResponse)

	_, err = ParseDraft(`{"title":"t","questions":[{"text":"pick","type":"radio"}]}`)
	require.ErrorIs(t, err, ErrInvalidResponse)
	require.ErrorIs(t, err, survey.ErrInvalidDraft)
}

func TestParseQuestionInheritsFields(t *testing.T) {
	prev := survey.Question{Text: "old", Type: survey.QuestionText, Required: true}

	q, err := ParseQuestion(`{"text":"new","options":[{"text":"ignored"}]}`, prev)
	require.NoError(t, err)
	assert.Equal(t, survey.QuestionText, q.Type)
	assert.True(t, q.Required)
	assert.Nil(t, q.Options)

	_, err = ParseQuestion(`{"text":"new","type":"slider"}`, prev)
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestSystemPromptFallsBackToGeneral(t *testing.T) {
	prompt := SystemPrompt("unknown", 4, "pl")
	assert.True(t, strings.Contains(prompt, TemplateText(DefaultTemplate)))
	assert.Contains(t, prompt, "Generate exactly 4 questions")
	assert.Contains(t, prompt, "in pl language")
}

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-survey/backend/internal/config"
	"github.com/zhouzirui/z-survey/backend/internal/model/survey"
)

var (
	// ErrInvalidResponse 模型输出无法解析为问卷。
	ErrInvalidResponse = errors.New("invalid model response")
	ErrInvalidIndex    = errors.New("invalid question index")
	ErrStreamDisabled  = errors.New("streaming disabled in configuration")
)

// Request describes one survey generation.
type Request struct {
	Prompt       string
	NumQuestions int
	Template     string
	Language     string
}

// Service 基于 eino chain 的问卷生成服务。
type Service struct {
	chatModel model.BaseChatModel
	cfg       config.AIConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
	logger    *zap.Logger
}

// NewService creates the chat model from cfg and compiles the chain.
func NewService(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, cfg, logger)
}

// NewServiceWithModel compiles the chain around an existing model.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, cfg config.AIConfig, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile survey chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		cfg:       cfg,
		chain:     runnable,
		logger:    logger.With(zap.String("component", "ai")),
	}, nil
}

// StreamingEnabled 指示是否允许流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// GenerateStream streams raw model deltas for req.
func (s *Service) GenerateStream(ctx context.Context, req Request) (*schema.StreamReader[*schema.Message], error) {
	if !s.StreamingEnabled() {
		return nil, ErrStreamDisabled
	}

	stream, err := s.chain.Stream(ctx, s.generationInput(req))
	if err != nil {
		return nil, fmt.Errorf("failed to stream survey chain output: %w", err)
	}
	return stream, nil
}

// Generate runs a single invocation and parses the result.
func (s *Service) Generate(ctx context.Context, req Request) (survey.Draft, error) {
	response, err := s.chain.Invoke(ctx, s.generationInput(req))
	if err != nil {
		return survey.Draft{}, fmt.Errorf("failed to run survey chain: %w", err)
	}

	draft, err := ParseDraft(response.Content)
	if err != nil {
		return survey.Draft{}, err
	}

	s.logger.Info("survey generated",
		zap.String("template", req.Template),
		zap.Int("questions", len(draft.Questions)),
	)
	return draft, nil
}

// RegenerateQuestion replaces the question at index and returns the updated
// draft. d itself is not modified.
func (s *Service) RegenerateQuestion(ctx context.Context, d survey.Draft, index int, feedback string) (survey.Draft, error) {
	if !d.HasQuestion(index) {
		return survey.Draft{}, fmt.Errorf("%w: %d. Survey has %d questions", ErrInvalidIndex, index, len(d.Questions))
	}

	response, err := s.chain.Invoke(ctx, map[string]any{
		"system": RegenerationPrompt(d, index, feedback),
		"query":  fmt.Sprintf("Regenerate question %d.", index+1),
	})
	if err != nil {
		return survey.Draft{}, fmt.Errorf("failed to run regeneration chain: %w", err)
	}

	question, err := ParseQuestion(response.Content, d.Questions[index])
	if err != nil {
		return survey.Draft{}, err
	}

	updated, err := d.WithQuestion(index, question)
	if err != nil {
		return survey.Draft{}, err
	}
	if err := updated.Validate(); err != nil {
		return survey.Draft{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	s.logger.Info("question regenerated", zap.Int("question_index", index))
	return updated, nil
}

func (s *Service) generationInput(req Request) map[string]any {
	if req.NumQuestions <= 0 {
		req.NumQuestions = 5
	}
	if req.Template == "" {
		req.Template = DefaultTemplate
	}
	if req.Language == "" {
		req.Language = s.cfg.Language
	}
	if req.Language == "" {
		req.Language = "en"
	}

	return map[string]any{
		"system": SystemPrompt(req.Template, req.NumQuestions, req.Language),
		"query":  UserPrompt(req.Prompt),
	}
}

// Collect drains a stream, calling onDelta for each non-empty fragment, and
// returns the concatenated text.
func Collect(stream *schema.StreamReader[*schema.Message], onDelta func(string) error) (string, error) {
	defer stream.Close()

	var builder strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return builder.String(), nil
		}
		if err != nil {
			return builder.String(), fmt.Errorf("failed to read model stream: %w", err)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}

		builder.WriteString(chunk.Content)
		if onDelta != nil {
			if err := onDelta(chunk.Content); err != nil {
				return builder.String(), err
			}
		}
	}
}

// ParseDraft decodes model output into a validated draft. Markdown code
// fences around the JSON body are tolerated.
func ParseDraft(text string) (survey.Draft, error) {
	var draft survey.Draft
	if err := json.Unmarshal([]byte(stripFences(text)), &draft); err != nil {
		return survey.Draft{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := draft.Validate(); err != nil {
		return survey.Draft{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return draft, nil
}

// ParseQuestion decodes a single regenerated question. Missing type and
// required fields are taken from previous.
func ParseQuestion(text string, previous survey.Question) (survey.Question, error) {
	var raw struct {
		Text     string          `json:"text"`
		Type     string          `json:"type"`
		Required *bool           `json:"required"`
		Options  []survey.Option `json:"options"`
	}
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		return survey.Question{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	q := survey.Question{
		Text:     strings.TrimSpace(raw.Text),
		Type:     survey.QuestionType(raw.Type),
		Required: previous.Required,
		Options:  raw.Options,
	}
	if q.Type == "" {
		q.Type = previous.Type
	}
	if raw.Required != nil {
		q.Required = *raw.Required
	}
	if !q.Type.HasOptions() {
		q.Options = nil
	}
	if q.Text == "" {
		return survey.Question{}, fmt.Errorf("%w: question text is empty", ErrInvalidResponse)
	}
	if !q.Type.Valid() {
		return survey.Question{}, fmt.Errorf("%w: unsupported type %q", ErrInvalidResponse, q.Type)
	}
	return q, nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// Package survey persists saved surveys and respondent answers with gorm.
package survey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	surveymodel "github.com/zhouzirui/z-survey/backend/internal/model/survey"
)

var (
	ErrSurveyNotFound = errors.New("survey not found")
	ErrInvalidAnswer  = errors.New("invalid answer")
)

const publicIDLength = 8

// Record identifies a freshly saved survey.
type Record struct {
	ID       int64  `json:"id"`
	PublicID string `json:"public_id"`
	Title    string `json:"title"`
}

// Summary 列表视图。
type Summary struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
	PublicID      string    `json:"public_id"`
	ResponseCount int       `json:"response_count"`
}

// Detail is what a respondent needs to render the answer form.
type Detail struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	PublicID    string       `json:"public_id"`
	CreatedAt   time.Time    `json:"created_at"`
	Schema      DetailSchema `json:"schema"`
}

type DetailSchema struct {
	Questions []DetailQuestion `json:"questions"`
}

type DetailQuestion struct {
	ID       int64                    `json:"id"`
	Text     string                   `json:"text"`
	Type     surveymodel.QuestionType `json:"type"`
	Required bool                     `json:"required"`
	Options  []surveymodel.Option     `json:"options"`
}

// ResponseInput is one respondent submission.
type ResponseInput struct {
	RespondentName  string        `json:"respondent_name"`
	RespondentEmail string        `json:"respondent_email"`
	Answers         []AnswerInput `json:"answers"`
}

// AnswerInput answers the question with id Question. Text questions use
// TextAnswer; choice questions use SelectedOptions.
type AnswerInput struct {
	Question        int64   `json:"question"`
	TextAnswer      *string `json:"text_answer"`
	SelectedOptions []int64 `json:"selected_options"`
}

// Store 问卷仓储。
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger.With(zap.String("component", "survey_store"))}
}

// Save persists a validated draft with its questions and options in one
// transaction.
func (s *Store) Save(ctx context.Context, d surveymodel.Draft, prompt string) (Record, error) {
	if err := d.Validate(); err != nil {
		return Record{}, err
	}

	row := Survey{
		PublicID:    newPublicID(),
		Title:       strings.TrimSpace(d.Title),
		Description: d.Description,
		Prompt:      prompt,
		Questions:   make([]Question, 0, len(d.Questions)),
	}
	for i, q := range d.Questions {
		question := Question{
			Text:     q.Text,
			Type:     string(q.Type),
			Required: q.Required,
			Position: i,
		}
		if q.Type.HasOptions() {
			for j, opt := range q.Options {
				question.Options = append(question.Options, Option{Text: opt.Text, Position: j})
			}
		}
		row.Questions = append(row.Questions, question)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
	if err != nil {
		return Record{}, fmt.Errorf("save survey: %w", err)
	}

	s.logger.Info("survey saved", zap.Int64("survey_id", row.ID), zap.String("public_id", row.PublicID))
	return Record{ID: row.ID, PublicID: row.PublicID, Title: row.Title}, nil
}

// List returns every survey, newest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	var rows []Survey
	if err := s.db.WithContext(ctx).Order("created_at desc").Order("id desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list surveys: %w", err)
	}

	summaries := make([]Summary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, Summary{
			ID:            row.ID,
			Title:         row.Title,
			Description:   row.Description,
			CreatedAt:     row.CreatedAt,
			PublicID:      row.PublicID,
			ResponseCount: row.ResponseCount,
		})
	}
	return summaries, nil
}

// Detail loads one survey with ordered questions and options.
func (s *Store) Detail(ctx context.Context, publicID string) (Detail, error) {
	row, err := s.load(ctx, s.db, publicID)
	if err != nil {
		return Detail{}, err
	}

	detail := Detail{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		PublicID:    row.PublicID,
		CreatedAt:   row.CreatedAt,
		Schema:      DetailSchema{Questions: make([]DetailQuestion, 0, len(row.Questions))},
	}
	for _, q := range row.Questions {
		dq := DetailQuestion{
			ID:       q.ID,
			Text:     q.Text,
			Type:     surveymodel.QuestionType(q.Type),
			Required: q.Required,
			Options:  make([]surveymodel.Option, 0, len(q.Options)),
		}
		for _, opt := range q.Options {
			dq.Options = append(dq.Options, surveymodel.Option{ID: opt.ID, Text: opt.Text})
		}
		detail.Schema.Questions = append(detail.Schema.Questions, dq)
	}
	return detail, nil
}

// Delete removes a survey together with its questions, options, responses
// and answers.
func (s *Store) Delete(ctx context.Context, publicID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row Survey
		if err := tx.Select("id").Where("public_id = ?", publicID).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSurveyNotFound
			}
			return fmt.Errorf("find survey: %w", err)
		}

		var responseIDs, answerIDs, questionIDs []int64
		if err := tx.Model(&Response{}).Where("survey_id = ?", row.ID).Pluck("id", &responseIDs).Error; err != nil {
			return fmt.Errorf("find responses: %w", err)
		}
		if len(responseIDs) > 0 {
			if err := tx.Model(&Answer{}).Where("response_id IN ?", responseIDs).Pluck("id", &answerIDs).Error; err != nil {
				return fmt.Errorf("find answers: %w", err)
			}
		}
		if err := tx.Model(&Question{}).Where("survey_id = ?", row.ID).Pluck("id", &questionIDs).Error; err != nil {
			return fmt.Errorf("find questions: %w", err)
		}

		if len(answerIDs) > 0 {
			if err := tx.Exec("DELETE FROM answer_selected_options WHERE answer_id IN ?", answerIDs).Error; err != nil {
				return fmt.Errorf("delete selected options: %w", err)
			}
			if err := tx.Where("id IN ?", answerIDs).Delete(&Answer{}).Error; err != nil {
				return fmt.Errorf("delete answers: %w", err)
			}
		}
		if err := tx.Where("survey_id = ?", row.ID).Delete(&Response{}).Error; err != nil {
			return fmt.Errorf("delete responses: %w", err)
		}
		if len(questionIDs) > 0 {
			if err := tx.Where("question_id IN ?", questionIDs).Delete(&Option{}).Error; err != nil {
				return fmt.Errorf("delete options: %w", err)
			}
		}
		if err := tx.Where("survey_id = ?", row.ID).Delete(&Question{}).Error; err != nil {
			return fmt.Errorf("delete questions: %w", err)
		}
		if err := tx.Delete(&Survey{}, row.ID).Error; err != nil {
			return fmt.Errorf("delete survey: %w", err)
		}

		s.logger.Info("survey deleted", zap.Int64("survey_id", row.ID), zap.String("public_id", publicID))
		return nil
	})
}

// SubmitResponse validates and stores answers, then bumps response_count.
func (s *Store) SubmitResponse(ctx context.Context, publicID string, in ResponseInput) (int64, error) {
	var responseID int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.load(ctx, tx, publicID)
		if err != nil {
			return err
		}

		answers, err := buildAnswers(row, in.Answers)
		if err != nil {
			return err
		}

		response := Response{
			SurveyID:        row.ID,
			RespondentName:  strings.TrimSpace(in.RespondentName),
			RespondentEmail: strings.TrimSpace(in.RespondentEmail),
			Answers:         answers,
		}
		if err := tx.Create(&response).Error; err != nil {
			return fmt.Errorf("create response: %w", err)
		}

		if err := tx.Model(&Survey{}).Where("id = ?", row.ID).
			UpdateColumn("response_count", gorm.Expr("response_count + ?", 1)).Error; err != nil {
			return fmt.Errorf("update response count: %w", err)
		}

		responseID = response.ID
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("response recorded", zap.String("public_id", publicID), zap.Int64("response_id", responseID))
	return responseID, nil
}

func (s *Store) load(ctx context.Context, db *gorm.DB, publicID string) (Survey, error) {
	var row Survey
	err := db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		Where("public_id = ?", publicID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Survey{}, ErrSurveyNotFound
	}
	if err != nil {
		return Survey{}, fmt.Errorf("load survey: %w", err)
	}
	return row, nil
}

func buildAnswers(row Survey, inputs []AnswerInput) ([]Answer, error) {
	questions := make(map[int64]Question, len(row.Questions))
	for _, q := range row.Questions {
		questions[q.ID] = q
	}

	answered := make(map[int64]bool, len(inputs))
	answers := make([]Answer, 0, len(inputs))
	for _, in := range inputs {
		q, ok := questions[in.Question]
		if !ok {
			return nil, fmt.Errorf("%w: question %d does not belong to this survey", ErrInvalidAnswer, in.Question)
		}
		if answered[q.ID] {
			return nil, fmt.Errorf("%w: question %d answered twice", ErrInvalidAnswer, q.ID)
		}

		answer, empty, err := buildAnswer(q, in)
		if err != nil {
			return nil, err
		}
		if empty {
			continue
		}
		answered[q.ID] = true
		answers = append(answers, answer)
	}

	for _, q := range row.Questions {
		if q.Required && !answered[q.ID] {
			return nil, fmt.Errorf("%w: question %q is required", ErrInvalidAnswer, q.Text)
		}
	}
	return answers, nil
}

// buildAnswer reports empty for answers that carry no content.
func buildAnswer(q Question, in AnswerInput) (Answer, bool, error) {
	qType := surveymodel.QuestionType(q.Type)

	if !qType.HasOptions() {
		if len(in.SelectedOptions) > 0 {
			return Answer{}, false, fmt.Errorf("%w: question %d takes a text answer", ErrInvalidAnswer, q.ID)
		}
		if in.TextAnswer == nil || strings.TrimSpace(*in.TextAnswer) == "" {
			return Answer{}, true, nil
		}
		text := strings.TrimSpace(*in.TextAnswer)
		return Answer{QuestionID: q.ID, TextAnswer: &text}, false, nil
	}

	if len(in.SelectedOptions) == 0 {
		return Answer{}, true, nil
	}
	if qType.SingleSelect() && len(in.SelectedOptions) > 1 {
		return Answer{}, false, fmt.Errorf("%w: question %d accepts a single option", ErrInvalidAnswer, q.ID)
	}

	options := make(map[int64]Option, len(q.Options))
	for _, opt := range q.Options {
		options[opt.ID] = opt
	}

	answer := Answer{QuestionID: q.ID}
	seen := make(map[int64]bool, len(in.SelectedOptions))
	for _, id := range in.SelectedOptions {
		opt, ok := options[id]
		if !ok {
			return Answer{}, false, fmt.Errorf("%w: option %d does not belong to question %d", ErrInvalidAnswer, id, q.ID)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		answer.SelectedOptions = append(answer.SelectedOptions, opt)
	}
	return answer, false, nil
}

func newPublicID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:publicIDLength]
}

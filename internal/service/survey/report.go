package survey

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	surveymodel "github.com/zhouzirui/z-survey/backend/internal/model/survey"
)

const (
	maxTextSamples = 10
	maxCommonWords = 10
)

// Report aggregates every response of one survey.
type Report struct {
	SurveyID       int64            `json:"survey_id"`
	PublicID       string           `json:"public_id"`
	Title          string           `json:"title"`
	TotalResponses int              `json:"total_responses"`
	CompletionRate float64          `json:"completion_rate"`
	Questions      []QuestionReport `json:"questions"`
}

// QuestionReport 单个问题的统计结果。Choice questions fill OptionCounts,
// text questions fill TextResponses and CommonWords.
type QuestionReport struct {
	QuestionID    int64                    `json:"question_id"`
	Text          string                   `json:"text"`
	Type          surveymodel.QuestionType `json:"type"`
	ResponseCount int                      `json:"response_count"`
	OptionCounts  []OptionCount            `json:"option_counts,omitempty"`
	TextResponses []string                 `json:"text_responses,omitempty"`
	CommonWords   []WordCount              `json:"common_words,omitempty"`
	Insight       string                   `json:"insight"`
}

type OptionCount struct {
	OptionID int64  `json:"option_id"`
	Text     string `json:"text"`
	Count    int    `json:"count"`
}

type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Analyze loads a survey with all responses and aggregates them per question.
func (s *Store) Analyze(ctx context.Context, publicID string) (Report, error) {
	row, err := s.load(ctx, s.db, publicID)
	if err != nil {
		return Report{}, err
	}

	var responses []Response
	err = s.db.WithContext(ctx).
		Preload("Answers").
		Preload("Answers.SelectedOptions").
		Where("survey_id = ?", row.ID).
		Order("id asc").
		Find(&responses).Error
	if err != nil {
		return Report{}, fmt.Errorf("load responses: %w", err)
	}

	report := buildReport(row, responses)
	s.logger.Debug("survey analyzed", zap.String("public_id", publicID), zap.Int("responses", report.TotalResponses))
	return report, nil
}

func buildReport(row Survey, responses []Response) Report {
	byQuestion := make(map[int64][]Answer, len(row.Questions))
	complete := 0
	for _, resp := range responses {
		answered := make(map[int64]bool, len(resp.Answers))
		for _, a := range resp.Answers {
			byQuestion[a.QuestionID] = append(byQuestion[a.QuestionID], a)
			answered[a.QuestionID] = true
		}
		if len(answered) == len(row.Questions) {
			complete++
		}
	}

	report := Report{
		SurveyID:       row.ID,
		PublicID:       row.PublicID,
		Title:          row.Title,
		TotalResponses: len(responses),
		Questions:      make([]QuestionReport, 0, len(row.Questions)),
	}
	if len(responses) > 0 {
		report.CompletionRate = float64(complete) / float64(len(responses))
	}

	for _, q := range row.Questions {
		answers := byQuestion[q.ID]
		qr := QuestionReport{
			QuestionID:    q.ID,
			Text:          q.Text,
			Type:          surveymodel.QuestionType(q.Type),
			ResponseCount: len(answers),
		}
		if qr.Type.HasOptions() {
			analyzeChoice(&qr, q, answers)
		} else {
			analyzeText(&qr, answers)
		}
		report.Questions = append(report.Questions, qr)
	}
	return report
}

func analyzeChoice(qr *QuestionReport, q Question, answers []Answer) {
	counts := make(map[int64]int, len(q.Options))
	for _, a := range answers {
		for _, opt := range a.SelectedOptions {
			counts[opt.ID]++
		}
	}

	qr.OptionCounts = make([]OptionCount, 0, len(q.Options))
	best := -1
	for _, opt := range q.Options {
		oc := OptionCount{OptionID: opt.ID, Text: opt.Text, Count: counts[opt.ID]}
		if best < 0 || oc.Count > qr.OptionCounts[best].Count {
			best = len(qr.OptionCounts)
		}
		qr.OptionCounts = append(qr.OptionCounts, oc)
	}

	if qr.ResponseCount == 0 || best < 0 {
		qr.Insight = "No responses yet."
		return
	}
	top := qr.OptionCounts[best]
	if qr.Type.SingleSelect() {
		qr.Insight = fmt.Sprintf("Most popular response: '%s' (%d responses, %.1f%%)",
			top.Text, top.Count, float64(top.Count)/float64(qr.ResponseCount)*100)
		return
	}
	qr.Insight = fmt.Sprintf("Most selected option: '%s' (selected %d times)", top.Text, top.Count)
}

func analyzeText(qr *QuestionReport, answers []Answer) {
	counts := make(map[string]int)
	texts := 0
	for _, a := range answers {
		if a.TextAnswer == nil || strings.TrimSpace(*a.TextAnswer) == "" {
			continue
		}
		texts++
		if len(qr.TextResponses) < maxTextSamples {
			qr.TextResponses = append(qr.TextResponses, strings.TrimSpace(*a.TextAnswer))
		}
		for _, word := range strings.Fields(strings.ToLower(*a.TextAnswer)) {
			counts[word]++
		}
	}

	qr.CommonWords = topWords(counts, maxCommonWords)
	if texts == 0 {
		qr.Insight = "No responses yet."
		return
	}

	words := make([]string, 0, 5)
	for _, wc := range qr.CommonWords {
		if len(words) == 5 {
			break
		}
		words = append(words, wc.Word)
	}
	qr.Insight = fmt.Sprintf("Received %d text responses. Most common words: %s", texts, strings.Join(words, ", "))
}

// topWords orders by count, then alphabetically so reports are stable.
func topWords(counts map[string]int, limit int) []WordCount {
	out := make([]WordCount, 0, len(counts))
	for word, n := range counts {
		out = append(out, WordCount{Word: word, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Word < out[j].Word
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}


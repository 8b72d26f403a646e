package survey

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func seedResponses(t *testing.T, store *Store) string {
	t.Helper()
	ctx := context.Background()

	record, err := store.Save(ctx, sampleDraft(), "offsite")
	require.NoError(t, err)
	detail, err := store.Detail(ctx, record.PublicID)
	require.NoError(t, err)
	qs := detail.Schema.Questions

	first, second := "Great food great talks", "great venue"
	inputs := []ResponseInput{
		{Answers: []AnswerInput{
			{Question: qs[0].ID, SelectedOptions: []int64{qs[0].Options[0].ID}},
			{Question: qs[1].ID, SelectedOptions: []int64{qs[1].Options[0].ID, qs[1].Options[1].ID}},
			{Question: qs[2].ID, TextAnswer: &first},
		}},
		{Answers: []AnswerInput{
			{Question: qs[0].ID, SelectedOptions: []int64{qs[0].Options[0].ID}},
			{Question: qs[1].ID, SelectedOptions: []int64{qs[1].Options[1].ID}},
			{Question: qs[2].ID, TextAnswer: &second},
		}},
		{Answers: []AnswerInput{
			{Question: qs[0].ID, SelectedOptions: []int64{qs[0].Options[1].ID}},
		}},
	}
	for _, in := range inputs {
		_, err := store.SubmitResponse(ctx, record.PublicID, in)
		require.NoError(t, err)
	}
	return record.PublicID
}

func TestAnalyzeAggregatesPerQuestion(t *testing.T) {
	store := newTestStore(t)
	publicID := seedResponses(t, store)

	report, err := store.Analyze(context.Background(), publicID)
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalResponses)
	assert.InDelta(t, 2.0/3.0, report.CompletionRate, 0.001)
	require.Len(t, report.Questions, 3)

	rating := report.Questions[0]
	assert.Equal(t, 3, rating.ResponseCount)
	require.Len(t, rating.OptionCounts, 2)
	assert.Equal(t, "Good", rating.OptionCounts[0].Text)
	assert.Equal(t, 2, rating.OptionCounts[0].Count)
	assert.Equal(t, 1, rating.OptionCounts[1].Count)
	assert.Equal(t, "Most popular response: 'Good' (2 responses, 66.7%)", rating.Insight)

	sessions := report.Questions[1]
	assert.Equal(t, 2, sessions.ResponseCount)
	require.Len(t, sessions.OptionCounts, 3)
	assert.Equal(t, []int{1, 2, 0}, []int{sessions.OptionCounts[0].Count, sessions.OptionCounts[1].Count, sessions.OptionCounts[2].Count})
	assert.Equal(t, "Most selected option: 'Workshop' (selected 2 times)", sessions.Insight)

	comments := report.Questions[2]
	assert.Equal(t, 2, comments.ResponseCount)
	assert.Equal(t, []string{"Great food great talks", "great venue"}, comments.TextResponses)
	require.NotEmpty(t, comments.CommonWords)
	assert.Equal(t, WordCount{Word: "great", Count: 3}, comments.CommonWords[0])
	assert.Equal(t, "Received 2 text responses. Most common words: great, food, talks, venue", comments.Insight)
}

func TestAnalyzeWithoutResponses(t *testing.T) {
	store := newTestStore(t)
	record, err := store.Save(context.Background(), sampleDraft(), "offsite")
	require.NoError(t, err)

	report, err := store.Analyze(context.Background(), record.PublicID)
	require.NoError(t, err)
	assert.Zero(t, report.TotalResponses)
	assert.Zero(t, report.CompletionRate)
	for _, q := range report.Questions {
		assert.Equal(t, "No responses yet.", q.Insight)
	}
}

func TestAnalyzeUnknownSurvey(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Analyze(context.Background(), "missing")
	require.ErrorIs(t, err, ErrSurveyNotFound)
}

func TestWriteExcel(t *testing.T) {
	store := newTestStore(t)
	publicID := seedResponses(t, store)
	report, err := store.Analyze(context.Background(), publicID)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.WriteExcel(&buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{"Summary", "Q1 Overall rating", "Q2 Which sessions did you atten", "Q3 Comments"}, f.GetSheetList())

	title, err := f.GetCellValue("Summary", "B1")
	require.NoError(t, err)
	assert.Equal(t, "Team Offsite", title)

	count, err := f.GetCellValue("Q1 Overall rating", "B6")
	require.NoError(t, err)
	assert.Equal(t, "2", count)
}

func TestQuestionSheetName(t *testing.T) {
	assert.Equal(t, "Q1 Rate us", questionSheetName(0, "Rate us?"))
	name := questionSheetName(11, "How likely are you to recommend our product to a friend")
	assert.LessOrEqual(t, len([]rune(name)), 31)
	assert.Equal(t, "Q12 How likely are you to recom", name)
}

package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-survey/backend/internal/model/survey"
)

func TestDecodeRejectsInvalidJSON(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsMissingType(t *testing.T) {
	_, err := Decode([]byte(`{"content":"x"}`))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsCompletionWithoutSurvey(t *testing.T) {
	_, err := Decode([]byte(`{"type":"generation_complete"}`))
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`{"type":"regeneration_complete","survey":{"title":"t","questions":[]}}`))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeKeepsUnknownTypes(t *testing.T) {
	env, err := Decode([]byte(`{"type":"heartbeat","message":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, Type("heartbeat"), env.Type)
	assert.False(t, env.Type.Known())
}

func TestDecodeSurveySaved(t *testing.T) {
	env, err := Decode([]byte(`{"type":"survey_saved","survey_data":{"id":42,"title":"CSAT","public_id":"abcd1234"},"message":"ok"}`))
	require.NoError(t, err)
	require.NotNil(t, env.SurveyData)
	assert.Equal(t, int64(42), env.SurveyData.ID)
	assert.Equal(t, "abcd1234", env.SurveyData.PublicID)
}

func TestRegenerateQuestionEncodesZeroIndex(t *testing.T) {
	draft := survey.Draft{Title: "t", Questions: []survey.Question{{Text: "q", Type: survey.QuestionText}}}
	raw, err := Encode(RegenerateQuestion(draft, 0, "shorter"))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "regenerate_question", fields["type"])
	assert.EqualValues(t, 0, fields["question_index"])
	assert.Equal(t, "shorter", fields["feedback"])
	assert.Contains(t, fields, "survey")
}

func TestGenerateSurveyRequestsStreaming(t *testing.T) {
	raw, err := Encode(GenerateSurvey("customer satisfaction", 3, "general"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"generate_survey","prompt":"customer satisfaction","num_questions":3,"template":"general","stream":true}`, string(raw))

	env, err := Decode(raw)
	require.NoError(t, err)
	assert.True(t, env.StreamRequested())
}

func TestStreamDefaultsToTrue(t *testing.T) {
	env, err := Decode([]byte(`{"type":"generate_survey","prompt":"x"}`))
	require.NoError(t, err)
	assert.True(t, env.StreamRequested())

	env, err = Decode([]byte(`{"type":"generate_survey","prompt":"x","stream":false}`))
	require.NoError(t, err)
	assert.False(t, env.StreamRequested())
}

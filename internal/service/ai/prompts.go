package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/z-survey/backend/internal/model/survey"
)

const DefaultTemplate = "general"

// surveyTemplates 按模板名组织的问卷生成指引。
var surveyTemplates = map[string]string{
	"general": `Create a survey on the given topic.
Use a variety of question types (text, single choice, multiple choice, dropdown).
Each question should be clear and specific.`,

	"customer_satisfaction": `Create a customer satisfaction survey.
Include questions about:
- Overall satisfaction with the product/service
- Customer service experience
- Value for money
- Likelihood to recommend to others
- Areas for improvement
Use a numerical scale (1-5) for rating questions.`,

	"market_research": `Create a market research survey on the given topic.
Include questions about:
- Demographics of respondents
- Purchasing habits
- Product/service preferences
- Factors influencing purchase decisions
- Awareness of competing brands`,

	"employee_evaluation": `Create an employee evaluation survey.
Include questions about:
- Professional skills
- Teamwork
- Communication
- Timeliness
- Initiative and creativity
- Areas for development`,
}

// Templates lists the known template names.
func Templates() []string {
	return []string{"general", "customer_satisfaction", "market_research", "employee_evaluation"}
}

// TemplateText returns the instructions for name, falling back to general.
func TemplateText(name string) string {
	if text, ok := surveyTemplates[name]; ok {
		return text
	}
	return surveyTemplates[DefaultTemplate]
}

// SystemPrompt builds the generation instructions for one request.
func SystemPrompt(template string, numQuestions int, language string) string {
	return fmt.Sprintf(`You are an AI specialized in creating surveys.

%s

Generate exactly %d questions appropriate for the survey topic.
For choice-based questions (radio, checkbox, dropdown), include sensible response options (3-7 options).
The response must be in %s language.

Return your response as a JSON object with the following structure:
{
    "title": "Survey title",
    "description": "Survey description",
    "questions": [
        {
            "text": "Question text",
            "type": "text|radio|checkbox|dropdown",
            "required": true|false,
            "options": [
                {"text": "Option 1"},
                {"text": "Option 2"}
            ]
        }
    ]
}

Make sure that:
1. Choice questions (radio, checkbox, dropdown) have options
2. Text questions don't need options
3. Each question has all required fields
Return only the JSON object.`, TemplateText(template), numQuestions, language)
}

// UserPrompt wraps the operator's topic.
func UserPrompt(topic string) string {
	return "Create a survey about: " + topic
}

// RegenerationPrompt asks for a replacement of the question at index while
// keeping the rest of the draft as context.
func RegenerationPrompt(d survey.Draft, index int, feedback string) string {
	target := d.Questions[index]

	var others strings.Builder
	for i, q := range d.Questions {
		if i == index {
			continue
		}
		fmt.Fprintf(&others, "Question %d: %s (Type: %s)\n", i+1, q.Text, q.Type)
		if len(q.Options) > 0 {
			others.WriteString("Options:\n")
			for _, opt := range q.Options {
				fmt.Fprintf(&others, "- %s\n", opt.Text)
			}
		}
	}

	description := d.Description
	if strings.TrimSpace(description) == "" {
		description = "Not provided"
	}
	if strings.TrimSpace(feedback) == "" {
		feedback = "This question needs improvement"
	}

	return fmt.Sprintf(`You are regenerating a single question in a survey about %q.
Survey description: %s

The survey contains the following questions:
%s
You need to regenerate question %d. The current version is:
%q (Type: %s)

User feedback about this question: %q

Generate a new version of this question that:
1. Fits well with the rest of the survey
2. Addresses the user's feedback
3. Maintains the same question type (%s)
4. Includes appropriate options if it's a multiple-choice question

Respond in JSON format with the following structure:
{
    "text": "The regenerated question text",
    "type": "%s",
    "required": %t,
    "options": [
        {"text": "Option 1"},
        {"text": "Option 2"}
    ]
}`, d.Title, description, others.String(), index+1, target.Text, target.Type, feedback, target.Type, target.Type, target.Required)
}

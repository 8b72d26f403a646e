package survey

import "time"

// Survey 持久化的问卷。
type Survey struct {
	ID            int64  `gorm:"primaryKey"`
	PublicID      string `gorm:"size:16;uniqueIndex;not null"`
	Title         string `gorm:"size:200;not null"`
	Description   string
	Prompt        string
	ResponseCount int `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Questions     []Question `gorm:"constraint:OnDelete:CASCADE"`
	Responses     []Response `gorm:"constraint:OnDelete:CASCADE"`
}

type Question struct {
	ID       int64    `gorm:"primaryKey"`
	SurveyID int64    `gorm:"index;not null"`
	Text     string   `gorm:"not null"`
	Type     string   `gorm:"size:20;not null;default:text"`
	Required bool     `gorm:"not null"`
	Position int      `gorm:"not null;default:0"`
	Options  []Option `gorm:"constraint:OnDelete:CASCADE"`
}

type Option struct {
	ID         int64  `gorm:"primaryKey"`
	QuestionID int64  `gorm:"index;not null"`
	Text       string `gorm:"size:200;not null"`
	Position   int    `gorm:"not null;default:0"`
}

// Response is one respondent's submission.
type Response struct {
	ID              int64 `gorm:"primaryKey"`
	SurveyID        int64 `gorm:"index;not null"`
	RespondentName  string
	RespondentEmail string
	CreatedAt       time.Time
	Answers         []Answer `gorm:"constraint:OnDelete:CASCADE"`
}

type Answer struct {
	ID              int64 `gorm:"primaryKey"`
	ResponseID      int64 `gorm:"index;not null"`
	QuestionID      int64 `gorm:"index;not null"`
	TextAnswer      *string
	SelectedOptions []Option `gorm:"many2many:answer_selected_options;"`
}

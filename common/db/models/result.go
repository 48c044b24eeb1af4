package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

type FeedbackType string

const (
	FeedbackTestCase       FeedbackType = "TEST_CASE"
	FeedbackStaticAnalysis FeedbackType = "STATIC_ANALYSIS"
)

// Messages stores the feedback message lines of one test case or finding.
type Messages pq.StringArray

func (m Messages) Value() (interface{}, error) {
	return pq.StringArray(m).Value()
}

func (m *Messages) Scan(value interface{}) error {
	return (*pq.StringArray)(m).Scan(value)
}

func (Messages) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "TEXT"
}

// BuildResult is the structured outcome of one finished build job.
// Scoring from feedback is applied later by the grading policy, so Score
// stays at its provisional zero value here.
type BuildResult struct {
	gorm.Model
	JobID           string `gorm:"index"`
	ParticipationID uint64 `gorm:"index"`
	ExerciseID      uint64

	Successful      bool
	CompletionDate  time.Time
	CorrectionRound int

	TestCaseCount       int
	PassedTestCaseCount int
	CodeIssueCount      int

	Score float64

	Feedbacks []BuildFeedback `gorm:"constraint:OnDelete:CASCADE"`
}

type BuildFeedback struct {
	gorm.Model
	BuildResultID uint `gorm:"index"`

	// Position keeps the feedback order produced by the converter.
	Position int

	TestName string
	Messages Messages
	Positive bool
	Type     FeedbackType
	Credits  *float64

	// NotFound marks feedback whose test name is not part of the
	// exercise's active test case catalogue.
	NotFound bool
}

package converter

import (
	"errors"
	"fmt"

	"buildhub/common/connectors/ciconn"
	"buildhub/common/db/models"
)

// ErrMalformedNotification marks a raw notification that is missing
// required fields. The caller clears the queue entry for such a job so the
// submission does not stay stuck, and surfaces the error.
var ErrMalformedNotification = errors.New("malformed build notification")

// TestCatalogue is the set of test cases currently active for an exercise,
// with their grading credits.
type TestCatalogue struct {
	credits map[string]float64
}

func NewTestCatalogue() *TestCatalogue {
	return &TestCatalogue{credits: make(map[string]float64)}
}

func (c *TestCatalogue) Add(name string, credits float64) {
	c.credits[name] = credits
}

func (c *TestCatalogue) Contains(name string) bool {
	_, ok := c.credits[name]
	return ok
}

/*
Convert normalizes a raw backend notification into a structured build result.

It is a pure function: no I/O, and converting the same notification with the
same catalogue always yields equal content. Result notifications may be
delivered more than once, so consumers rely on this idempotence.

Reported test names are matched against the exercise's active test case
catalogue; names the catalogue does not know are kept as feedback but marked,
never silently dropped.
*/
func Convert(notification *ciconn.BuildNotification, catalogue *TestCatalogue, scaEnabled bool) (*models.BuildResult, error) {
	if notification == nil {
		return nil, ErrMalformedNotification
	}
	if notification.CompletionDate.IsZero() {
		return nil, fmt.Errorf("%w: no completion date", ErrMalformedNotification)
	}
	if notification.Jobs == nil {
		return nil, fmt.Errorf("%w: no job reports", ErrMalformedNotification)
	}

	result := &models.BuildResult{
		JobID:           notification.JobID,
		Successful:      notification.Successful,
		CompletionDate:  notification.CompletionDate,
		CorrectionRound: 0,
	}

	for _, report := range notification.Jobs {
		for _, test := range report.FailedTests {
			result.Feedbacks = append(result.Feedbacks, testCaseFeedback(test, false, catalogue))
			result.TestCaseCount++
		}
		for _, test := range report.SuccessfulTests {
			result.Feedbacks = append(result.Feedbacks, testCaseFeedback(test, true, catalogue))
			result.TestCaseCount++
			result.PassedTestCaseCount++
		}
	}

	if scaEnabled {
		for _, report := range notification.StaticCodeAnalysisReports {
			for _, issue := range report.Issues {
				result.Feedbacks = append(result.Feedbacks, issueFeedback(report.Tool, issue))
				result.CodeIssueCount++
			}
		}
	}

	for position := range result.Feedbacks {
		result.Feedbacks[position].Position = position
	}

	return result, nil
}

func testCaseFeedback(test ciconn.TestCaseResult, positive bool, catalogue *TestCatalogue) models.BuildFeedback {
	feedback := models.BuildFeedback{
		TestName: test.Name,
		Messages: models.Messages(test.Messages),
		Positive: positive,
		Type:     models.FeedbackTestCase,
	}
	if catalogue != nil && catalogue.Contains(test.Name) {
		credits := catalogue.credits[test.Name]
		feedback.Credits = &credits
	} else {
		feedback.NotFound = true
	}
	return feedback
}

func issueFeedback(tool string, issue ciconn.StaticAnalysisIssue) models.BuildFeedback {
	message := issue.Message
	if issue.FilePath != "" {
		message = fmt.Sprintf("%s (%s:%d)", message, issue.FilePath, issue.Line)
	}
	return models.BuildFeedback{
		TestName: fmt.Sprintf("%s: %s", tool, issue.Rule),
		Messages: models.Messages{message},
		Positive: false,
		Type:     models.FeedbackStaticAnalysis,
	}
}

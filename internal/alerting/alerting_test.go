package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/franksunye/FSOpsAssistant/internal/runtracker"
)

type fakeEmailClient struct {
	err       error
	lastInput *sesv2.SendEmailInput
}

func (f *fakeEmailClient) SendEmail(ctx context.Context, input *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.lastInput = input
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{}, nil
}

func TestAlertFailedRunSendsSummaryEmail(t *testing.T) {
	client := &fakeEmailClient{}
	a := &SESAlerter{client: client, fromEmail: "agent@example.com", toEmail: "ops@example.com", log: zap.NewNop()}

	run := runtracker.Run{
		ID:                     "run-1",
		TriggerTime:            time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
		Status:                 runtracker.StatusFailed,
		OpportunitiesProcessed: 12,
		NotificationsSent:      3,
		Errors:                 []string{"fetch: timeout"},
	}

	a.AlertFailedRun(context.Background(), run)

	assert.NotNil(t, client.lastInput)
	assert.Equal(t, []string{"ops@example.com"}, client.lastInput.Destination.ToAddresses)
}

func TestAlertFailedRunNeverPanicsOnSendError(t *testing.T) {
	client := &fakeEmailClient{err: errors.New("ses unavailable")}
	a := &SESAlerter{client: client, fromEmail: "agent@example.com", toEmail: "ops@example.com", log: zap.NewNop()}

	assert.NotPanics(t, func() {
		a.AlertFailedRun(context.Background(), runtracker.Run{ID: "run-2", Status: runtracker.StatusFailed})
	})
}

func TestFailedRunBodyTruncatesErrorsAfterCap(t *testing.T) {
	run := runtracker.Run{
		ID:     "run-3",
		Errors: []string{"e1", "e2", "e3", "e4", "e5", "e6", "e7"},
	}
	body := failedRunBody(run)
	assert.Contains(t, body, "...and 2 more")
}

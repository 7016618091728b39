// Package alerting sends a best-effort operator email when a tick's Run
// ends Failed, adapted from the teacher's internal/email package — the
// teacher's whole reason for existing was alerting on delivery failure, so
// its SES sender is repurposed here from primary delivery channel to ops
// notification channel rather than dropped.
package alerting

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"github.com/franksunye/FSOpsAssistant/internal/runtracker"
)

// maxErrorLines bounds how many of a run's collected errors get quoted in
// the alert body, so a run that failed on every one of a thousand
// opportunities doesn't produce an unreadable email.
const maxErrorLines = 5

type emailSender interface {
	SendEmail(ctx context.Context, input *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESAlerter emails a single ops recipient a summary of a Failed run. It
// never returns an error to its caller: alerting failures are logged, not
// escalated, and must never block the orchestrator's finishRun.
type SESAlerter struct {
	client    emailSender
	fromEmail string
	toEmail   string
	log       *zap.Logger
}

func NewSESAlerter(cfg aws.Config, log *zap.Logger) (*SESAlerter, error) {
	from := os.Getenv("SES_FROM_EMAIL")
	to := os.Getenv("OPS_ALERT_EMAIL")
	if from == "" || to == "" {
		return nil, fmt.Errorf("alerting: SES_FROM_EMAIL and OPS_ALERT_EMAIL must both be set")
	}
	return &SESAlerter{
		client:    sesv2.NewFromConfig(cfg),
		fromEmail: from,
		toEmail:   to,
		log:       log,
	}, nil
}

// AlertFailedRun sends a summary email for a run that ended Failed. Any
// error sending the alert itself is logged and swallowed.
func (a *SESAlerter) AlertFailedRun(ctx context.Context, run runtracker.Run) {
	subject := fmt.Sprintf("[sla-agent] run %s failed", run.ID)
	body := failedRunBody(run)

	_, err := a.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(a.fromEmail),
		Destination:      &types.Destination{ToAddresses: []string{a.toEmail}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body:    &types.Body{Text: &types.Content{Data: aws.String(body)}},
			},
		},
	})
	if err != nil {
		a.log.Warn("alerting: failed to send ops alert", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func failedRunBody(run runtracker.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run:          %s\n", run.ID)
	fmt.Fprintf(&b, "Triggered at: %s\n", run.TriggerTime.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Status:       %s\n", run.Status)
	fmt.Fprintf(&b, "Opportunities processed: %d\n", run.OpportunitiesProcessed)
	fmt.Fprintf(&b, "Notifications sent:      %d\n", run.NotificationsSent)
	fmt.Fprintf(&b, "Error count:  %d\n\n", len(run.Errors))

	shown := run.Errors
	if len(shown) > maxErrorLines {
		shown = shown[:maxErrorLines]
	}
	for _, e := range shown {
		fmt.Fprintf(&b, "  - %s\n", e)
	}
	if len(run.Errors) > maxErrorLines {
		fmt.Fprintf(&b, "  ...and %d more\n", len(run.Errors)-maxErrorLines)
	}
	return b.String()
}

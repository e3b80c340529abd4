package main

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// Mailer delivers one email.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
	Enabled() bool
}

// disabledMailer drops every message.
type disabledMailer struct{}

func (disabledMailer) Send(_ context.Context, to, subject, _, _ string) error {
	log.Printf("Mail disabled, skipping %q to %s", subject, to)
	return nil
}

func (disabledMailer) Enabled() bool { return false }

// SESMailer sends mail through Amazon SES v2.
type SESMailer struct {
	client   *sesv2.Client
	from     string
	fromName string
}

// NewMailer returns an SES mailer, or a disabled one when from is empty.
func NewMailer(ctx context.Context, region, from, fromName string) (Mailer, error) {
	if from == "" {
		log.Println("Mail disabled: no sender address configured")
		return disabledMailer{}, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	log.Printf("Mail enabled: from=%s, region=%s", from, region)
	return &SESMailer{
		client:   sesv2.NewFromConfig(cfg),
		from:     from,
		fromName: fromName,
	}, nil
}

func (m *SESMailer) Enabled() bool { return true }

func (m *SESMailer) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	from := m.from
	if m.fromName != "" {
		from = fmt.Sprintf("%s <%s>", m.fromName, m.from)
	}

	_, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(htmlBody), Charset: aws.String("UTF-8")},
					Text: &types.Content{Data: aws.String(textBody), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}

	log.Printf("Email sent: to=%s, subject=%s", to, subject)
	return nil
}

func issueSubject(issue *Issue) string {
	return fmt.Sprintf("Sunday Paper: Issue #%d", issue.WeekNumber)
}

// SendIssue mails the full issue.
func SendIssue(ctx context.Context, m Mailer, to string, issue *Issue) error {
	html, err := RenderHTML(issue)
	if err != nil {
		return err
	}
	return m.Send(ctx, to, issueSubject(issue), html, RenderMarkdown(issue))
}

// ShareIssue mails a short note pointing a friend at the issue.
func ShareIssue(ctx context.Context, m Mailer, to string, issue *Issue) error {
	text := fmt.Sprintf("Hey! Here is our weekly Sunday Paper for circle %s.\n\n", issue.CircleCode)
	html, err := RenderHTML(issue)
	if err != nil {
		return err
	}
	return m.Send(ctx, to, issueSubject(issue), html, text+RenderMarkdown(issue))
}

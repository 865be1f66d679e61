// Package delivery sends verification codes over email and SMS.
package delivery

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"go.uber.org/zap"
)

// Message is channel-agnostic; Subject is ignored by SMS.
type Message struct {
	Subject string
	Body    string
}

// Sender delivers a message to one recipient.
type Sender interface {
	Send(ctx context.Context, to string, msg Message) error
}

var verificationEmail = template.Must(template.New("verify").Parse(`
<main style="display: flex; flex-direction: column; margin: 0 auto">
  <p style="font-weight: 700; font-size: 20px">Welcome to {{.Brand}}, {{.Name}}</p>
  <p style="font-weight: 500; font-size: 16px">Your OTP is: <b>{{.Code}}</b></p>
</main>
`))

// VerificationEmail renders the email carrying a verification code.
func VerificationEmail(brand, name, code string) (Message, error) {
	var body bytes.Buffer
	err := verificationEmail.Execute(&body, map[string]string{"Brand": brand, "Name": name, "Code": code})
	if err != nil {
		return Message{}, fmt.Errorf("render verification email: %w", err)
	}
	return Message{Subject: "Please verify your email", Body: body.String()}, nil
}

// VerificationSMS renders the text message carrying a verification code.
func VerificationSMS(brand, code string) Message {
	return Message{Body: fmt.Sprintf("Your otp for %s is: %s", brand, code)}
}

// LogSender is used when a channel has no transport configured. It logs instead of sending.
type LogSender struct {
	Channel string
	Log     *zap.Logger
}

func (s LogSender) Send(_ context.Context, to string, msg Message) error {
	if s.Log != nil {
		s.Log.Debug("delivery transport not configured; message logged",
			zap.String("channel", s.Channel),
			zap.String("to", to),
			zap.String("subject", msg.Subject),
			zap.String("body", msg.Body),
		)
	}
	return nil
}

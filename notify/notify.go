// Package notify delivers one-time codes to users by email.
//
// SMTP sends real mail over a STARTTLS-upgraded submission connection. Log
// writes the message to a structured logger instead and is meant for local
// development only, since it records the code itself.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	// ErrDelivery wraps every transport failure.
	ErrDelivery = errors.New("notification delivery failed")
	// ErrInvalidRecipient is returned for an address that cannot be put in a header.
	ErrInvalidRecipient = errors.New("invalid notification recipient")
)

// Message is one rendered notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// OTPMessage renders an email-verification or password-reset code.
func OTPMessage(to, code string) Message {
	return Message{
		To:      to,
		Subject: "Your verification code",
		Body: "Your verification code is: " + code + "\r\n\r\n" +
			"If you did not request this code you can ignore this email.\r\n",
	}
}

// IPConfirmationMessage renders the code that confirms a login from a new address.
func IPConfirmationMessage(to, username, ip, code string) Message {
	return Message{
		To:      to,
		Subject: "Confirm sign-in from a new IP address",
		Body: fmt.Sprintf("Hi %s,\r\n\r\n"+
			"Someone signed in to your account from %s, an address we have not seen before.\r\n"+
			"If this was you, enter the code below to confirm it:\r\n\r\n"+
			"    %s\r\n\r\n"+
			"If this was not you, change your password.\r\n", username, ip, code),
	}
}

func checkRecipient(to string) error {
	if to == "" || strings.ContainsAny(to, "\r\n<>") {
		return ErrInvalidRecipient
	}
	return nil
}

// Log writes notifications to a slog.Logger.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a Log notifier. A nil logger uses slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) SendOTP(ctx context.Context, email, code string) error {
	return l.deliver(ctx, OTPMessage(email, code), code)
}

func (l *Log) SendIPConfirmation(ctx context.Context, email, username, ip, code string) error {
	return l.deliver(ctx, IPConfirmationMessage(email, username, ip, code), code)
}

func (l *Log) deliver(ctx context.Context, msg Message, code string) error {
	if err := checkRecipient(msg.To); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	l.logger.InfoContext(ctx, "notification",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("code", code),
	)
	return nil
}

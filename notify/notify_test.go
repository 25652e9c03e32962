package notify

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSMTP accepts one session without STARTTLS or AUTH and records the DATA payload.
func fakeSMTP(t *testing.T) (host string, port int, data <-chan string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		reply := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }
		reply("220 localhost ESMTP")

		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				reply("250-localhost")
				reply("250 8BITMIME")
			case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
				reply("250 OK")
			case cmd == "DATA":
				reply("354 go ahead")
				var body strings.Builder
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					body.WriteString(l)
				}
				out <- body.String()
				reply("250 OK")
			case cmd == "QUIT":
				reply("221 bye")
				return
			default:
				reply("502 not implemented")
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port, out
}

func TestSMTPSendsOTP(t *testing.T) {
	host, port, data := fakeSMTP(t)

	s, err := NewSMTP(SMTPConfig{Host: host, Port: port, From: "noreply@example.com", FromName: "Guard", Timeout: 5 * time.Second})
	require.NoError(t, err)

	require.NoError(t, s.SendOTP(context.Background(), "a@gmail.com", "1234567"))

	select {
	case body := <-data:
		assert.Contains(t, body, "To: a@gmail.com\r\n")
		assert.Contains(t, body, "From: Guard <noreply@example.com>\r\n")
		assert.Contains(t, body, "Subject: Your verification code\r\n")
		assert.Contains(t, body, "Your verification code is: 1234567")
	case <-time.After(5 * time.Second):
		t.Fatal("server never received DATA")
	}
}

func TestSMTPRequireTLS(t *testing.T) {
	host, port, _ := fakeSMTP(t)

	s, err := NewSMTP(SMTPConfig{Host: host, Port: port, From: "noreply@example.com", RequireTLS: true, Timeout: 5 * time.Second})
	require.NoError(t, err)

	err = s.SendOTP(context.Background(), "a@gmail.com", "1234567")
	assert.ErrorIs(t, err, ErrDelivery)
}

func TestSMTPDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	s, err := NewSMTP(SMTPConfig{Host: "127.0.0.1", Port: port, From: "noreply@example.com", Timeout: time.Second})
	require.NoError(t, err)

	err = s.SendIPConfirmation(context.Background(), "a@gmail.com", "alice", "10.0.0.9", "123456")
	assert.ErrorIs(t, err, ErrDelivery)
}

func TestSMTPRejectsHeaderInjection(t *testing.T) {
	s, err := NewSMTP(SMTPConfig{Host: "localhost", Port: 25, From: "noreply@example.com"})
	require.NoError(t, err)

	err = s.SendOTP(context.Background(), "a@gmail.com\r\nBcc: x@evil.io", "1234567")
	assert.ErrorIs(t, err, ErrInvalidRecipient)
}

func TestNewSMTPValidation(t *testing.T) {
	_, err := NewSMTP(SMTPConfig{Port: 587, From: "a@b.io"})
	assert.Error(t, err)
	_, err = NewSMTP(SMTPConfig{Host: "smtp.example.com", Port: 0, From: "a@b.io"})
	assert.Error(t, err)
	_, err = NewSMTP(SMTPConfig{Host: "smtp.example.com", Port: 587})
	assert.Error(t, err)

	cfg := DefaultSMTPConfig()
	assert.Equal(t, "smtp.gmail.com", cfg.Host)
	assert.Equal(t, 587, cfg.Port)
}

func TestIPConfirmationMessage(t *testing.T) {
	msg := IPConfirmationMessage("a@gmail.com", "alice", "10.0.0.9", "123456")
	assert.Equal(t, "a@gmail.com", msg.To)
	assert.Contains(t, msg.Body, "alice")
	assert.Contains(t, msg.Body, "10.0.0.9")
	assert.Contains(t, msg.Body, "123456")
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLog(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, n.SendOTP(context.Background(), "a@gmail.com", "7654321"))
	assert.Contains(t, buf.String(), `"to":"a@gmail.com"`)
	assert.Contains(t, buf.String(), `"code":"7654321"`)

	assert.ErrorIs(t, n.SendOTP(context.Background(), "", "1"), ErrInvalidRecipient)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.SendIPConfirmation(ctx, "a@gmail.com", "alice", "1.2.3.4", "123456"), ErrDelivery)
}

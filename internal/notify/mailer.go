package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
)

// Mailer sends plain-text mail. Delivery failures are the caller's
// problem to log; the donation transition has already been committed by
// the time any mail goes out.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// SMTPMailer is a minimal SMTP sender, aimed at a relay the university
// already runs (no TLS negotiation beyond what net/smtp does itself).
type SMTPMailer struct {
	Host string
	Port int
	From string
}

func (m *SMTPMailer) Send(ctx context.Context, to []string, subject, body string) error {
	addr := net.JoinHostPort(m.Host, strconv.Itoa(m.Port))

	msg := strings.Builder{}
	msg.WriteString("From: " + m.From + "\r\n")
	msg.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	if err := smtp.SendMail(addr, nil, m.From, to, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

// MockMailer records sent mail for tests.
type MockMailer struct {
	mu   sync.Mutex
	Sent []MockMail
	Err  error
}

type MockMail struct {
	To      []string
	Subject string
	Body    string
}

func (m *MockMailer) Send(_ context.Context, to []string, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, MockMail{To: to, Subject: subject, Body: body})
	return m.Err
}

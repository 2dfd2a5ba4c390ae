package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// SMTPConfig holds outbound SMTP settings
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	FromName   string
	UseTLS     bool
	Timeout    time.Duration
	MaxRetries int
}

// transport hands a fully built message to a mail server
type transport interface {
	deliver(ctx context.Context, from, to string, msg []byte) error
}

// SMTPSender sends codes over SMTP with linear backoff between attempts
type SMTPSender struct {
	cfg       SMTPConfig
	transport transport
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

// NewSMTPSender creates an SMTPSender
func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.FromName == "" {
		cfg.FromName = "UMX"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPSender{
		cfg:       cfg,
		transport: &smtpTransport{cfg: cfg},
		sleep:     sleepContext,
		logger:    logger,
	}
}

// SendVerificationCode delivers the code, retrying transient failures
func (s *SMTPSender) SendVerificationCode(ctx context.Context, to, code string) error {
	from := fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.From)
	msg := buildVerificationMessage(from, to, code)

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		attempts = attempt
		if attempt > 1 {
			if err := s.sleep(ctx, time.Duration(attempt-1)*time.Second); err != nil {
				lastErr = err
				break
			}
		}

		err := s.transport.deliver(ctx, s.cfg.From, to, msg)
		if err == nil {
			s.logger.Info("Verification email sent", slog.String("recipient", to), slog.Int("attempt", attempt))
			return nil
		}
		lastErr = err
		s.logger.Warn("Verification email attempt failed",
			slog.String("recipient", to),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if !isRetryable(err) {
			break
		}
	}

	return &DeliveryError{Recipient: to, Attempts: attempts, Err: lastErr}
}

// permanentError marks failures that retrying cannot fix (auth, rejected recipient)
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func buildVerificationMessage(from, to, code string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: Seu código de verificação\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString("Olá!\r\n\r\n")
	b.WriteString("Seu código de verificação é: " + code + "\r\n\r\n")
	b.WriteString("O código expira em 15 minutos. Se você não solicitou este cadastro, ignore este email.\r\n")
	return []byte(b.String())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// smtpTransport speaks SMTP via net/smtp, upgrading with STARTTLS when configured
type smtpTransport struct {
	cfg SMTPConfig
}

func (t *smtpTransport) deliver(ctx context.Context, from, to string, msg []byte) error {
	addr := net.JoinHostPort(t.cfg.Host, fmt.Sprintf("%d", t.cfg.Port))

	dialer := &net.Dialer{Timeout: t.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial SMTP server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(t.cfg.Timeout))
	}

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start SMTP session: %w", err)
	}
	defer client.Close()

	if t.cfg.UseTLS {
		if err := client.StartTLS(&tls.Config{ServerName: t.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if t.cfg.Username != "" {
		auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return &permanentError{fmt.Errorf("failed to authenticate: %w", err)}
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return &permanentError{fmt.Errorf("failed to set recipient: %w", err)}
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err := wc.Write(msg); err != nil {
		wc.Close()
		return fmt.Errorf("failed to write email data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to finish email data: %w", err)
	}

	return client.Quit()
}

package email

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// ConsoleSender prints codes to a dedicated writer for local development.
// It never goes through the application logger, and config validation
// refuses it outside APP_ENV=development.
type ConsoleSender struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleSender creates a ConsoleSender writing to out
func NewConsoleSender(out io.Writer) *ConsoleSender {
	return &ConsoleSender{out: out}
}

// SendVerificationCode writes the code to the console writer
func (s *ConsoleSender) SendVerificationCode(ctx context.Context, to, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.out, "[dev-mail] verification code for %s: %s\n", to, code)
	return err
}

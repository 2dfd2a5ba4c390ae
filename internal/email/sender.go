// Package email delivers verification codes to registering users.
package email

import (
	"context"
	"fmt"
)

// Sender delivers a verification code to an address
type Sender interface {
	SendVerificationCode(ctx context.Context, to, code string) error
}

// DeliveryError reports a code that could not be delivered.
// The pending registration stays redeemable; callers surface this to the operator.
type DeliveryError struct {
	Recipient string
	Attempts  int
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("verification code delivery to %s failed after %d attempt(s): %v", e.Recipient, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

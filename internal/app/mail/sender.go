package mail

import (
	"context"
	"errors"
	"fmt"
)

// Message is one outbound email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

// Sender delivers messages and reports whether its transport is reachable.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Verify(ctx context.Context) error
}

// SendError wraps a transport failure for a single message.
type SendError struct {
	To  string
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send mail to %s: %v", e.To, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// ConfigurationError reports missing or unusable transport settings.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "mail configuration: " + e.Reason
}

// IsConfigurationError reports whether err carries a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsSendError reports whether err carries a SendError.
func IsSendError(err error) bool {
	var se *SendError
	return errors.As(err, &se)
}

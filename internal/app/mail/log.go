package mail

import (
	"context"

	"github.com/R3E-Network/storefront/pkg/logger"
)

// LogSender writes messages to the log instead of delivering them. It stands
// in for SMTP in development and when no relay is configured; Verify reports
// the missing transport.
type LogSender struct {
	log *logger.Logger
}

var _ Sender = (*LogSender)(nil)

// NewLogSender returns a sender that only logs.
func NewLogSender(log *logger.Logger) *LogSender {
	if log == nil {
		log = logger.NewDefault("mail")
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.WithField("to", msg.To).
		WithField("subject", msg.Subject).
		Info("mail delivery disabled; message logged only")
	return nil
}

func (s *LogSender) Verify(context.Context) error {
	return &ConfigurationError{Reason: "no mail transport configured"}
}

package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"math"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/R3E-Network/storefront/internal/app/metrics"
	"github.com/R3E-Network/storefront/pkg/logger"
)

// SMTPConfig configures the SMTP transport.
type SMTPConfig struct {
	Host               string
	Port               int
	User               string
	Password           string
	SenderAddress      string
	SenderName         string
	InsecureSkipVerify bool
	RetryCount         int
	RetryBackoffMs     int
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
	Dial() (gomail.SendCloser, error)
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	dialer         dialer
	host           string
	user           string
	password       string
	senderAddress  string
	senderName     string
	retryCount     int
	retryBackoffMs int
	log            *logger.Logger
}

var _ Sender = (*SMTPSender)(nil)

// NewSMTPSender builds an SMTP sender. Missing sender identity and retry
// settings fall back to defaults; a missing host is reported by Verify and
// Send as a ConfigurationError.
func NewSMTPSender(cfg SMTPConfig, log *logger.Logger) *SMTPSender {
	if log == nil {
		log = logger.NewDefault("mail")
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	if cfg.InsecureSkipVerify {
		log.Warn("InsecureSkipVerify is enabled for mail TLS connection")
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	senderAddr := strings.TrimSpace(cfg.SenderAddress)
	if senderAddr == "" {
		senderAddr = "noreply@storefront.local"
	}
	senderName := strings.TrimSpace(cfg.SenderName)
	if senderName == "" {
		senderName = "Storefront"
	}
	retryCount := cfg.RetryCount
	if retryCount <= 0 {
		retryCount = 3
	}
	retryBackoffMs := cfg.RetryBackoffMs
	if retryBackoffMs <= 0 {
		retryBackoffMs = 100
	}

	log.WithField("host", cfg.Host).
		WithField("port", cfg.Port).
		WithField("retry_count", retryCount).
		WithField("retry_backoff_ms", retryBackoffMs).
		Info("smtp sender configured")

	return &SMTPSender{
		dialer:         d,
		host:           strings.TrimSpace(cfg.Host),
		user:           cfg.User,
		password:       cfg.Password,
		senderAddress:  senderAddr,
		senderName:     senderName,
		retryCount:     retryCount,
		retryBackoffMs: retryBackoffMs,
		log:            log,
	}
}

func (s *SMTPSender) checkConfig() error {
	if s.host == "" {
		return &ConfigurationError{Reason: "smtp host is not set"}
	}
	if s.user != "" && s.password == "" {
		return &ConfigurationError{Reason: "smtp password is not set for user " + s.user}
	}
	return nil
}

// Send delivers msg, retrying with exponential backoff. Cancellation of ctx
// stops further attempts.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := s.checkConfig(); err != nil {
		return err
	}
	if strings.TrimSpace(msg.To) == "" {
		return &SendError{To: msg.To, Err: errors.New("recipient address is empty")}
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.senderAddress, s.senderName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTMLBody)

	var lastErr error
	backoffMs := s.retryBackoffMs
	for attempt := 0; attempt <= s.retryCount; attempt++ {
		if err := ctx.Err(); err != nil {
			return &SendError{To: msg.To, Err: err}
		}
		err := s.dialer.DialAndSend(m)
		if err == nil {
			metrics.RecordMailSend(s.host, true)
			s.log.WithField("subject", msg.Subject).
				WithField("attempt", attempt+1).
				Debug("mail sent")
			return nil
		}

		lastErr = err
		if attempt < s.retryCount {
			s.log.WithError(err).
				WithField("attempt", attempt+1).
				WithField("backoff_ms", backoffMs).
				Warn("mail send attempt failed, retrying")
			select {
			case <-ctx.Done():
				return &SendError{To: msg.To, Err: ctx.Err()}
			case <-time.After(time.Duration(backoffMs) * time.Millisecond):
			}
			backoffMs = int(math.Min(float64(backoffMs)*2, 32000))
		}
	}

	metrics.RecordMailSend(s.host, false)
	s.log.WithError(lastErr).
		WithField("attempts", s.retryCount+1).
		Error("mail send failed")
	return &SendError{To: msg.To, Err: lastErr}
}

// Verify opens and closes a connection to the relay.
func (s *SMTPSender) Verify(ctx context.Context) error {
	if err := s.checkConfig(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := s.dialer.Dial()
	if err != nil {
		return &SendError{To: s.host, Err: err}
	}
	return conn.Close()
}

// Host returns the configured relay host.
func (s *SMTPSender) Host() string { return s.host }

package abandonment

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/R3E-Network/storefront/internal/app/domain/abandonment"
	"github.com/R3E-Network/storefront/internal/app/mail"
	"github.com/R3E-Network/storefront/internal/app/metrics"
	"github.com/R3E-Network/storefront/internal/app/storage"
	"github.com/R3E-Network/storefront/pkg/logger"
)

// Config controls reminder timing and presentation.
type Config struct {
	FirstReminderAfter  time.Duration
	SecondReminderAfter time.Duration
	FinalReminderAfter  time.Duration
	Retention           time.Duration
	BatchSize           int
	StoreName           string
	StoreURL            string
}

// DefaultConfig returns the standard reminder cadence: 24 hours after the last
// cart change, then 72 hours and 168 hours after the previous reminder.
func DefaultConfig() Config {
	return Config{
		FirstReminderAfter:  24 * time.Hour,
		SecondReminderAfter: 72 * time.Hour,
		FinalReminderAfter:  168 * time.Hour,
		Retention:           30 * 24 * time.Hour,
		BatchSize:           100,
		StoreName:           "Storefront",
		StoreURL:            "http://localhost:8080",
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.FirstReminderAfter <= 0 {
		c.FirstReminderAfter = def.FirstReminderAfter
	}
	if c.SecondReminderAfter <= 0 {
		c.SecondReminderAfter = def.SecondReminderAfter
	}
	if c.FinalReminderAfter <= 0 {
		c.FinalReminderAfter = def.FinalReminderAfter
	}
	if c.Retention <= 0 {
		c.Retention = def.Retention
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.StoreName == "" {
		c.StoreName = def.StoreName
	}
	if c.StoreURL == "" {
		c.StoreURL = def.StoreURL
	}
	return c
}

// thresholdFor returns how long a record must sit at stage before the next
// reminder is due.
func (c Config) thresholdFor(stage domain.Stage) time.Duration {
	switch stage {
	case domain.StageNone:
		return c.FirstReminderAfter
	case domain.StageFirst:
		return c.SecondReminderAfter
	case domain.StageSecond:
		return c.FinalReminderAfter
	}
	return 0
}

// Processor sends due reminders and purges resolved records.
type Processor struct {
	store  storage.AbandonmentStore
	sender mail.Sender
	cfg    Config
	log    *logger.Logger
	now    func() time.Time
}

// NewProcessor creates a processor. Zero config fields take their defaults.
func NewProcessor(store storage.AbandonmentStore, sender mail.Sender, cfg Config, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.NewDefault("abandonment-processor")
	}
	if sender == nil {
		sender = mail.NewLogSender(log)
	}
	return &Processor{
		store:  store,
		sender: sender,
		cfg:    cfg.withDefaults(),
		log:    log,
		now:    time.Now,
	}
}

// WithClock overrides the time source.
func (p *Processor) WithClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// Config returns the effective configuration.
func (p *Processor) Config() Config { return p.cfg }

// ProcessAbandonedCarts sends the next reminder to every due record and
// returns how many records were advanced. A failure on one record is logged
// and leaves it for the next scan. The returned error reports stages whose
// scan query failed.
func (p *Processor) ProcessAbandonedCarts(ctx context.Context) (int, error) {
	now := p.now().UTC()
	advanced := 0
	var errs []error

	for _, stage := range []domain.Stage{domain.StageNone, domain.StageFirst, domain.StageSecond} {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := p.processStage(ctx, stage, now)
		advanced += n
		if err != nil {
			errs = append(errs, err)
		}
	}

	if advanced > 0 {
		p.log.WithField("advanced", advanced).Info("abandoned cart reminders sent")
	}
	return advanced, errors.Join(errs...)
}

// processStage walks every due record of stage in BatchSize pages. Records
// that fail stay behind the cursor, so they cannot crowd out later ones.
func (p *Processor) processStage(ctx context.Context, stage domain.Stage, now time.Time) (int, error) {
	next, _ := stage.Next()
	cutoff := now.Add(-p.cfg.thresholdFor(stage))
	advanced := 0

	var after *domain.Cursor
	for {
		candidates, err := p.store.ListDue(ctx, stage, cutoff, after, p.cfg.BatchSize)
		if err != nil {
			metrics.RecordReminderFailure(string(next), "store")
			p.log.WithError(err).
				WithField("stage", stage).
				Warn("list due abandonment records failed")
			return advanced, &domain.StoreError{Op: "list due", Err: err}
		}

		for _, c := range candidates {
			if ctx.Err() != nil {
				return advanced, nil
			}
			if p.remind(ctx, c, next, now) {
				advanced++
			}
		}
		if len(candidates) < p.cfg.BatchSize {
			return advanced, nil
		}
		pos := candidates[len(candidates)-1].Position()
		after = &pos
	}
}

func (p *Processor) remind(ctx context.Context, c domain.Candidate, next domain.Stage, now time.Time) bool {
	entry := p.log.WithField("record_id", c.ID).
		WithField("user_id", c.UserID).
		WithField("stage", next)

	snapshot, err := c.Snapshot()
	if err != nil {
		metrics.RecordReminderFailure(string(next), "decode")
		entry.WithError(err).Warn("skip abandonment record with unreadable snapshot")
		return false
	}
	if len(snapshot) == 0 {
		return false
	}

	params := newReminderParams(next, c.Name, p.cfg.StoreName, p.cfg.StoreURL, snapshot)
	subject, body, err := RenderReminder(next, params)
	if err != nil {
		metrics.RecordReminderFailure(string(next), "render")
		entry.WithError(err).Error("render reminder failed")
		return false
	}

	if err := p.sender.Send(ctx, mail.Message{To: c.Email, Subject: subject, HTMLBody: body}); err != nil {
		metrics.RecordReminderFailure(string(next), "send")
		entry.WithError(err).Warn("send reminder failed")
		return false
	}

	ok, err := p.store.AdvanceStage(ctx, c.ID, c.Stage, next, c.LastUpdatedAt, now)
	if err != nil {
		metrics.RecordReminderFailure(string(next), "store")
		entry.WithError(err).Warn("advance reminder stage failed after send")
		return false
	}
	if !ok {
		entry.Info("abandonment record changed during reminder; stage left as is")
		return false
	}
	metrics.RecordReminderSent(string(next))
	return true
}

// CleanupOldRecords deletes purchased or final records created before the
// retention window. Unresolved records are never touched.
func (p *Processor) CleanupOldRecords(ctx context.Context) (int64, error) {
	cutoff := p.now().UTC().Add(-p.cfg.Retention)
	removed, err := p.store.DeleteResolvedBefore(ctx, cutoff)
	if err != nil {
		p.log.WithError(err).Warn("abandonment cleanup failed")
		return 0, &domain.StoreError{Op: "cleanup", Err: err}
	}
	metrics.RecordCleanup(removed)
	if removed > 0 {
		p.log.WithField("removed", removed).Info("old abandonment records cleaned up")
	}
	return removed, nil
}

// Stats summarizes the abandonment table.
func (p *Processor) Stats(ctx context.Context) (domain.Stats, error) {
	stats, err := p.store.AbandonmentStats(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("abandonment stats: %w", err)
	}
	return stats, nil
}

// VerifySender checks that the mail transport is reachable.
func (p *Processor) VerifySender(ctx context.Context) error {
	if err := p.sender.Verify(ctx); err != nil {
		p.log.WithError(err).Warn("mail transport verification failed")
		return err
	}
	p.log.Debug("mail transport verified")
	return nil
}

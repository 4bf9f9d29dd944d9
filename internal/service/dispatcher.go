// internal/service/dispatcher.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	appErrors "github.com/ParasBhendarkar/Simple-email-Sender/internal/errors"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/mailer"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/model"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/validator"
)

// DispatchConfig controls pacing and retries for one run.
type DispatchConfig struct {
	BatchSize              int           `mapstructure:"batch_size" validate:"min=1"`
	DelayBetweenMessages   time.Duration `mapstructure:"delay_between_messages" validate:"gte=0"`
	DelayBetweenBatches    time.Duration `mapstructure:"delay_between_batches" validate:"gte=0"`
	MaxRetriesPerRecipient int           `mapstructure:"max_retries_per_recipient" validate:"min=1"` // total transport attempts
	MaxPerRun              int           `mapstructure:"max_per_run" validate:"min=0"`               // 0 = unlimited
	DryRun                 bool          `mapstructure:"dry_run"`
}

func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		BatchSize:              10,
		DelayBetweenMessages:   time.Second,
		DelayBetweenBatches:    60 * time.Second,
		MaxRetriesPerRecipient: 2,
	}
}

func (c DispatchConfig) Validate() error {
	v, err := validator.NewV10Validator()
	if err != nil {
		return err
	}
	return v.Validate(c)
}

// SendHistory is the part of the send history store the engine needs.
type SendHistory interface {
	Get(ctx context.Context, campaignID, address string) (*model.SendRecord, error)
	Put(ctx context.Context, rec *model.SendRecord) error
}

// AddressValidator rejects addresses that cannot be delivered to.
type AddressValidator interface {
	Email(address string) error
}

// Limiter spaces transport calls. *rate.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Dispatcher sends one campaign to a recipient list, one recipient at a time.
type Dispatcher struct {
	History   SendHistory
	Renderer  *Renderer
	Transport mailer.Transport
	Addresses AddressValidator
	Logger    *slog.Logger

	now        func() time.Time
	pause      func(ctx context.Context, d time.Duration) error
	newLimiter func(every time.Duration) Limiter
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClock sets the clock used for attempt timestamps.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// WithPause replaces the inter-batch sleep.
func WithPause(pause func(ctx context.Context, d time.Duration) error) DispatcherOption {
	return func(d *Dispatcher) { d.pause = pause }
}

// WithLimiterFactory replaces the per-run throttle.
func WithLimiterFactory(f func(every time.Duration) Limiter) DispatcherOption {
	return func(d *Dispatcher) { d.newLimiter = f }
}

func NewDispatcher(history SendHistory, renderer *Renderer, transport mailer.Transport, addresses AddressValidator, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		History:    history,
		Renderer:   renderer,
		Transport:  transport,
		Addresses:  addresses,
		Logger:     logger,
		now:        time.Now,
		pause:      sleep,
		newLimiter: newRateLimiter,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func newRateLimiter(every time.Duration) Limiter {
	if every <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(every), 1)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RunCampaign processes recipients in order and returns the run report.
//
// Individual recipient failures only land in the report. The returned error
// is a FatalError when the configuration is invalid or the send history store
// fails, and ctx.Err() when the run was interrupted; the partial report is
// returned in both cases.
func (d *Dispatcher) RunCampaign(ctx context.Context, campaignID string, recipients []model.Recipient, tmpl model.MessageTemplate, cfg DispatchConfig) (*model.CampaignReport, error) {
	if campaignID == "" {
		return nil, appErrors.NewFatal("validate config", errors.New("campaign id is required"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, appErrors.NewFatal("validate config", err)
	}

	report := &model.CampaignReport{
		RunID:      uuid.NewString(),
		CampaignID: campaignID,
		Total:      len(recipients),
		DryRun:     cfg.DryRun,
		Errors:     []model.RecipientError{},
	}
	logger := d.Logger.With("campaign_id", campaignID, "run_id", report.RunID)
	logger.Info("campaign_started",
		"recipients", len(recipients),
		"dry_run", cfg.DryRun,
		"batch_size", cfg.BatchSize,
		"max_per_run", cfg.MaxPerRun,
	)

	run := &campaignRun{
		Dispatcher: d,
		campaignID: campaignID,
		tmpl:       tmpl,
		cfg:        cfg,
		report:     report,
		logger:     logger,
		limiter:    d.newLimiter(cfg.DelayBetweenMessages),
		seen:       make(map[string]bool, len(recipients)),
	}

	processed := 0
	for i, r := range recipients {
		if err := ctx.Err(); err != nil {
			report.Interrupted = true
			logger.Warn("campaign_interrupted", "processed", i, "remaining", len(recipients)-i)
			return report, err
		}
		if cfg.MaxPerRun > 0 && report.Sent >= cfg.MaxPerRun {
			report.Deferred = len(recipients) - i
			logger.Info("campaign_deferred", "deferred", report.Deferred, "max_per_run", cfg.MaxPerRun)
			break
		}

		counted, err := run.process(r)
		if err != nil {
			logger.Error("campaign_aborted", "error", err, "address", r.Key())
			return report, err
		}
		if !counted {
			continue
		}

		processed++
		last := i == len(recipients)-1
		capped := cfg.MaxPerRun > 0 && report.Sent >= cfg.MaxPerRun
		if processed%cfg.BatchSize == 0 && !last && !capped && cfg.DelayBetweenBatches > 0 {
			logger.Info("batch_pause", "processed", processed, "delay", cfg.DelayBetweenBatches.String())
			// an interrupted pause is picked up at the top of the loop
			_ = d.pause(ctx, cfg.DelayBetweenBatches)
		}
	}

	logger.Info("campaign_finished",
		"total", report.Total,
		"sent", report.Sent,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"deferred", report.Deferred,
	)
	return report, nil
}

// campaignRun is the state of one RunCampaign call.
type campaignRun struct {
	*Dispatcher
	campaignID string
	tmpl       model.MessageTemplate
	cfg        DispatchConfig
	report     *model.CampaignReport
	logger     *slog.Logger
	limiter    Limiter
	seen       map[string]bool

	// lastAttempt is when the previous transport call returned.
	lastAttempt time.Time
}

// process handles one recipient. counted reports whether the recipient
// counts toward the batch size.
func (run *campaignRun) process(r model.Recipient) (counted bool, err error) {
	// started sends always run to completion
	ctx := context.WithoutCancel(context.Background())
	addr := r.Key()
	logger := run.logger.With("address", addr)

	if addr != "" && run.seen[addr] {
		run.report.Skipped++
		logger.Info("recipient_skipped", "reason", "duplicate")
		return true, nil
	}
	run.seen[addr] = true

	if err := run.Addresses.Email(addr); err != nil {
		return true, run.rejectAddress(ctx, r, logger)
	}

	rec, err := run.History.Get(ctx, run.campaignID, addr)
	if err != nil {
		return false, appErrors.NewFatal("get send record", err)
	}
	if rec != nil && rec.IsSent() {
		run.report.Skipped++
		logger.Info("recipient_skipped", "reason", "already_sent")
		return true, nil
	}
	if rec == nil {
		rec = &model.SendRecord{
			CampaignID:       run.campaignID,
			RecipientAddress: addr,
			Status:           model.StatusPending,
		}
		if err := run.put(ctx, rec); err != nil {
			return false, err
		}
	}

	// a PENDING record is an interrupted attempt sequence and keeps its count;
	// earlier FAILED or SKIPPED outcomes get a fresh budget
	limit := run.cfg.MaxRetriesPerRecipient
	if rec.Status != model.StatusPending {
		limit += rec.AttemptCount
	}

	msg, err := run.Renderer.Render(run.tmpl, r)
	if err != nil {
		return true, run.fail(ctx, rec, appErrors.KindOf(err), err, logger)
	}

	if run.cfg.DryRun {
		// an interrupted attempt sequence stays PENDING so its count keeps bounding the next live run
		if rec.Status != model.StatusPending || rec.AttemptCount == 0 {
			rec.Status = model.StatusSkipped
			rec.LastError = ""
			if err := run.put(ctx, rec); err != nil {
				return false, err
			}
		}
		run.report.Skipped++
		logger.Info("recipient_skipped", "reason", "dry_run", "subject", msg.Subject)
		return false, nil
	}

	if rec.AttemptCount >= limit {
		exhausted := fmt.Errorf("retry budget exhausted after %d attempts", rec.AttemptCount)
		if rec.LastError != "" {
			exhausted = fmt.Errorf("%w: %s", exhausted, rec.LastError)
		}
		return true, run.fail(ctx, rec, appErrors.KindTransient, exhausted, logger)
	}

	return true, run.send(ctx, rec, msg, limit, logger)
}

// throttle blocks until the limiter grants a token and at least
// DelayBetweenMessages has passed since the previous attempt returned.
func (run *campaignRun) throttle(ctx context.Context) error {
	if err := run.limiter.Wait(ctx); err != nil {
		return err
	}
	if run.lastAttempt.IsZero() {
		return nil
	}
	return sleep(ctx, run.cfg.DelayBetweenMessages-time.Since(run.lastAttempt))
}

// send attempts delivery until success, a permanent failure or the limit.
// Every attempt is written to the store before the next one starts.
func (run *campaignRun) send(ctx context.Context, rec *model.SendRecord, msg model.RenderedMessage, limit int, logger *slog.Logger) error {
	var (
		fatal     error
		delivered bool
	)

	noDelay := retry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
	backoff := retry.WithMaxRetries(uint64(limit-rec.AttemptCount-1), noDelay)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := run.throttle(ctx); err != nil {
			fatal = appErrors.NewFatal("throttle", err)
			return fatal
		}

		sendErr := run.Transport.Send(ctx, msg)
		run.lastAttempt = time.Now()
		now := run.now().UTC()
		rec.AttemptCount++
		rec.LastAttemptAt = &now

		if sendErr == nil {
			delivered = true
			rec.Status = model.StatusSent
			rec.LastError = ""
			fatal = run.put(ctx, rec)
			return fatal
		}

		rec.LastError = sendErr.Error()
		if appErrors.KindOf(sendErr) == appErrors.KindTransient && rec.AttemptCount < limit {
			rec.Status = model.StatusPending
			if fatal = run.put(ctx, rec); fatal != nil {
				return fatal
			}
			logger.Warn("recipient_retrying", "attempt", rec.AttemptCount, "limit", limit, "error", sendErr)
			return retry.RetryableError(sendErr)
		}

		rec.Status = model.StatusFailed
		if fatal = run.put(ctx, rec); fatal != nil {
			return fatal
		}
		return sendErr
	})

	if delivered {
		run.report.Sent++
		logger.Info("recipient_sent", "attempts", rec.AttemptCount)
	}
	if fatal != nil {
		return fatal
	}
	if err != nil {
		kind := appErrors.KindOf(err)
		if kind != appErrors.KindTransient {
			kind = appErrors.KindPermanent
		}
		run.report.AddError(rec.RecipientAddress, kind, err)
		logger.Warn("recipient_failed", "kind", kind, "attempts", rec.AttemptCount, "error", err)
	}
	return nil
}

// rejectAddress marks an undeliverable address FAILED without touching its attempt count.
func (run *campaignRun) rejectAddress(ctx context.Context, r model.Recipient, logger *slog.Logger) error {
	invalid := &appErrors.InvalidAddressError{Address: r.Address}
	addr := r.Key()
	if addr == "" {
		run.report.AddError(r.Address, appErrors.KindInvalidAddress, invalid)
		logger.Warn("recipient_failed", "kind", appErrors.KindInvalidAddress, "error", invalid)
		return nil
	}

	rec, err := run.History.Get(ctx, run.campaignID, addr)
	if err != nil {
		return appErrors.NewFatal("get send record", err)
	}
	if rec == nil {
		rec = &model.SendRecord{CampaignID: run.campaignID, RecipientAddress: addr}
	}
	return run.fail(ctx, rec, appErrors.KindInvalidAddress, invalid, logger)
}

// fail records a non-send failure: attempt_count is left as it is.
func (run *campaignRun) fail(ctx context.Context, rec *model.SendRecord, kind string, cause error, logger *slog.Logger) error {
	rec.Status = model.StatusFailed
	rec.LastError = cause.Error()
	if err := run.put(ctx, rec); err != nil {
		return err
	}
	run.report.AddError(rec.RecipientAddress, kind, cause)
	logger.Warn("recipient_failed", "kind", kind, "error", cause)
	return nil
}

func (run *campaignRun) put(ctx context.Context, rec *model.SendRecord) error {
	if err := run.History.Put(ctx, rec); err != nil {
		return appErrors.NewFatal("put send record", err)
	}
	return nil
}

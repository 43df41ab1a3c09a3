package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Mutter0815/quotamailer/internal/campaign"
	"github.com/Mutter0815/quotamailer/internal/compose"
	"github.com/Mutter0815/quotamailer/internal/store"
	"github.com/Mutter0815/quotamailer/pkg/logx"
	"github.com/Mutter0815/quotamailer/pkg/metrics"
)

type State string

const (
	StateInit        State = "INIT"
	StateLoading     State = "LOADING"
	StateDispatching State = "DISPATCHING"
	StateDrained     State = "DRAINED"
	StateHalted      State = "HALTED"
)

var (
	ErrConfig = errors.New("invalid sender configuration")
	ErrSource = errors.New("recipient source unavailable")
	ErrState  = errors.New("durable state unavailable")
	ErrRecord = errors.New("delivered message not recorded")
)

type StateStore interface {
	LoadSentAddresses(ctx context.Context) (map[string]struct{}, error)
	RecordSend(ctx context.Context, rec campaign.SentRecord) error
	LoadUnsubscribes(ctx context.Context) (map[string]struct{}, error)
}

type RecipientSource interface {
	Load(ctx context.Context) ([]campaign.Recipient, error)
}

type Transport interface {
	Send(ctx context.Context, m campaign.Message) error
}

type EventPublisher interface {
	PublishJSON(ctx context.Context, body []byte) error
}

type Config struct {
	Accounts        []campaign.SenderAccount
	MinDelaySeconds int
	MaxDelaySeconds int
}

type Option func(*Engine)

// WithEvents publishes a campaign.SendEvent after every recorded send.
func WithEvents(p EventPublisher) Option { return func(e *Engine) { e.events = p } }

func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

func WithRand(r *rand.Rand) Option { return func(e *Engine) { e.rnd = r } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithDryRun keeps sends out of the durable log. Quotas are still counted
// in memory so a dry run walks the same accounts a real run would.
func WithDryRun() Option { return func(e *Engine) { e.dryRun = true } }

// Engine runs one campaign at a time. Runs are strictly sequential: one
// delivery in flight, durable append before the next eligibility check.
type Engine struct {
	cfg       Config
	store     StateStore
	source    RecipientSource
	transport Transport
	events    EventPublisher
	dryRun    bool

	rnd   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	mu     sync.Mutex
	report campaign.Report
}

func New(cfg Config, st StateStore, src RecipientSource, tr Transport, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg,
		store:     st,
		source:    src,
		transport: tr,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:     sleepCtx,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.report = campaign.Report{State: string(StateInit), Accounts: accountReports(cfg.Accounts, nil)}
	return e
}

// Run executes INIT → LOADING → DISPATCHING → DRAINED|HALTED. The report is
// returned for every terminal state. A nil error with State HALTED means the
// quotas were exhausted.
func (e *Engine) Run(ctx context.Context) (campaign.Report, error) {
	runID := uuid.NewString()
	log := logx.L().With("run_id", runID)
	counts := make([]int, len(e.cfg.Accounts))
	e.begin(runID)

	if err := validate(e.cfg); err != nil {
		log.Errorw("config_invalid", "error", err)
		return e.finish(log, StateHalted, counts), fmt.Errorf("%w: %v", ErrConfig, err)
	}

	e.setState(StateLoading)
	log.Infow("run_started", "accounts", len(e.cfg.Accounts))

	sent, err := e.store.LoadSentAddresses(ctx)
	if err != nil {
		log.Errorw("load_sent_error", "error", err)
		return e.finish(log, StateHalted, counts), fmt.Errorf("%w: %w", ErrState, err)
	}
	unsub, err := e.store.LoadUnsubscribes(ctx)
	if err != nil {
		log.Errorw("load_unsubscribes_error", "error", err)
		return e.finish(log, StateHalted, counts), fmt.Errorf("%w: %w", ErrState, err)
	}
	recipients, err := e.source.Load(ctx)
	if err != nil {
		log.Errorw("load_recipients_error", "error", err)
		return e.finish(log, StateHalted, counts), fmt.Errorf("%w: %w", ErrSource, err)
	}
	e.update(func(r *campaign.Report) { r.Recipients = len(recipients) })
	log.Infow("state_loaded", "sent", len(sent), "unsubscribed", len(unsub), "recipients", len(recipients))

	if len(recipients) == 0 {
		log.Infow("no_recipients")
		return e.finish(log, StateDrained, counts), nil
	}

	e.setState(StateDispatching)
	for i, r := range recipients {
		if err := ctx.Err(); err != nil {
			log.Warnw("run_interrupted", "remaining", len(recipients)-i)
			return e.finish(log, StateHalted, counts), err
		}

		r.Email = strings.TrimSpace(r.Email)
		if !storableAddress(r.Email) {
			log.Errorw("recipient_address_invalid", "to", r.Email, "row", i+1)
			e.skip(log, r, "invalid_address")
			continue
		}
		if _, ok := sent[r.Email]; ok {
			e.skip(log, r, "already_sent")
			continue
		}
		if _, ok := unsub[store.NormalizeAddress(r.Email)]; ok {
			e.skip(log, r, "unsubscribed")
			continue
		}

		idx := pickAccount(e.cfg.Accounts, counts)
		if idx < 0 {
			log.Infow("quota_exhausted", "remaining", len(recipients)-i)
			return e.finish(log, StateHalted, counts), nil
		}
		acc := e.cfg.Accounts[idx]

		ok, err := e.dispatch(ctx, log, runID, r, acc)
		if err != nil {
			return e.finish(log, StateHalted, counts), err
		}
		if ok {
			sent[r.Email] = struct{}{}
			counts[idx]++
			e.update(func(rep *campaign.Report) { rep.Accounts[idx].Sent = counts[idx] })
			log.Infow("account_progress", "account", acc.Email, "sent", counts[idx], "limit", acc.DailyLimit)
		}

		if pickAccount(e.cfg.Accounts, counts) < 0 {
			log.Infow("quota_exhausted", "remaining", len(recipients)-i-1)
			return e.finish(log, StateHalted, counts), nil
		}

		if ok && i < len(recipients)-1 {
			d := e.delay()
			metrics.PacingDelay.Observe(d.Seconds())
			log.Infow("pacing_delay", "seconds", int(d/time.Second))
			if err := e.sleep(ctx, d); err != nil {
				log.Warnw("run_interrupted", "remaining", len(recipients)-i-1)
				return e.finish(log, StateHalted, counts), err
			}
		}
	}

	return e.finish(log, StateDrained, counts), nil
}

// dispatch composes and delivers one message. It reports whether the send
// succeeded and was durably recorded (or, in dry-run mode, only delivered);
// a non-nil error means the run must stop.
func (e *Engine) dispatch(ctx context.Context, log *zap.SugaredLogger, runID string, r campaign.Recipient, acc campaign.SenderAccount) (bool, error) {
	fields := []any{"to", r.Email, "from", acc.Email}

	msg, err := compose.Compose(r, acc)
	if err != nil {
		log.Errorw("compose_error", append(fields, "error", err)...)
		e.fail(acc)
		return false, nil
	}

	start := time.Now()
	err = e.transport.Send(ctx, msg)
	metrics.SendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Warnw("send_failed", append(fields, "error", err)...)
		e.fail(acc)
		return false, nil
	}

	rec := campaign.SentRecord{Timestamp: e.now().UTC(), RecipientEmail: r.Email, SenderEmail: acc.Email}
	if e.dryRun {
		log.Infow("dry_run_not_recorded", fields...)
		return true, nil
	}
	if err := e.store.RecordSend(ctx, rec); err != nil {
		log.Errorw("record_send_error", append(fields, "error", err)...)
		return false, fmt.Errorf("%w: %s: %w", ErrRecord, r.Email, err)
	}
	metrics.SendsTotal.WithLabelValues(acc.Email).Inc()
	log.Infow("send_success", fields...)

	e.publish(ctx, log, runID, rec)
	return true, nil
}

func (e *Engine) publish(ctx context.Context, log *zap.SugaredLogger, runID string, rec campaign.SentRecord) {
	if e.events == nil {
		return
	}
	body, err := json.Marshal(campaign.SendEvent{
		RunID:     runID,
		Timestamp: rec.Timestamp,
		Recipient: rec.RecipientEmail,
		Sender:    rec.SenderEmail,
	})
	if err != nil {
		log.Errorw("event_marshal_error", "error", err)
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.events.PublishJSON(pubCtx, body); err != nil {
		metrics.EventPublishFailures.Inc()
		log.Warnw("event_publish_error", "to", rec.RecipientEmail, "error", err)
	}
}

// storableAddress rejects addresses the line-oriented sent log cannot hold.
func storableAddress(addr string) bool {
	return addr != "" && !strings.ContainsAny(addr, ",\r\n")
}

// pickAccount returns the available account with the smallest sent count,
// first configured wins ties, or -1 when every quota is used up.
func pickAccount(accounts []campaign.SenderAccount, counts []int) int {
	best := -1
	for i, acc := range accounts {
		if counts[i] >= acc.DailyLimit {
			continue
		}
		if best < 0 || counts[i] < counts[best] {
			best = i
		}
	}
	return best
}

// delay is a whole number of seconds drawn uniformly from [min,max].
func (e *Engine) delay() time.Duration {
	lo, hi := e.cfg.MinDelaySeconds, e.cfg.MaxDelaySeconds
	return time.Duration(lo+e.rnd.Intn(hi-lo+1)) * time.Second
}

func validate(cfg Config) error {
	if len(cfg.Accounts) == 0 {
		return errors.New("no sender accounts configured")
	}
	seen := make(map[string]struct{}, len(cfg.Accounts))
	for i, acc := range cfg.Accounts {
		if acc.Email == "" || acc.Password == "" {
			return fmt.Errorf("account %d: identity and credential are required", i+1)
		}
		if acc.DailyLimit < 0 {
			return fmt.Errorf("account %s: negative daily limit", acc.Email)
		}
		if _, dup := seen[acc.Email]; dup {
			return fmt.Errorf("account %s configured twice", acc.Email)
		}
		seen[acc.Email] = struct{}{}
	}
	if cfg.MinDelaySeconds < 0 || cfg.MaxDelaySeconds < cfg.MinDelaySeconds {
		return fmt.Errorf("delay range [%d,%d] is invalid", cfg.MinDelaySeconds, cfg.MaxDelaySeconds)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package engine

import (
	"go.uber.org/zap"

	"github.com/Mutter0815/quotamailer/internal/campaign"
	"github.com/Mutter0815/quotamailer/pkg/metrics"
)

// Snapshot returns a copy of the current or last run's report. Safe to call
// from other goroutines while Run is in progress.
func (e *Engine) Snapshot() campaign.Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.report
	out.Accounts = append([]campaign.AccountReport(nil), e.report.Accounts...)
	return out
}

func (e *Engine) begin(runID string) {
	e.update(func(r *campaign.Report) {
		*r = campaign.Report{
			RunID:     runID,
			State:     string(StateInit),
			StartedAt: e.now().UTC(),
			Accounts:  accountReports(e.cfg.Accounts, nil),
		}
	})
}

func (e *Engine) setState(s State) {
	e.update(func(r *campaign.Report) { r.State = string(s) })
}

func (e *Engine) update(fn func(r *campaign.Report)) {
	e.mu.Lock()
	fn(&e.report)
	e.mu.Unlock()
}

func (e *Engine) skip(log *zap.SugaredLogger, r campaign.Recipient, reason string) {
	metrics.SkippedTotal.WithLabelValues(reason).Inc()
	log.Debugw("recipient_skipped", "to", r.Email, "reason", reason)
	e.update(func(rep *campaign.Report) {
		switch reason {
		case "unsubscribed":
			rep.SkippedUnsubscribed++
		case "invalid_address":
			rep.SkippedInvalid++
		default:
			rep.SkippedSent++
		}
	})
}

func (e *Engine) fail(acc campaign.SenderAccount) {
	metrics.SendFailuresTotal.WithLabelValues(acc.Email).Inc()
	e.update(func(rep *campaign.Report) { rep.Failed++ })
}

// finish records the terminal state and logs the per-account summary.
func (e *Engine) finish(log *zap.SugaredLogger, s State, counts []int) campaign.Report {
	e.update(func(r *campaign.Report) {
		r.State = string(s)
		r.FinishedAt = e.now().UTC()
		r.Accounts = accountReports(e.cfg.Accounts, counts)
	})
	rep := e.Snapshot()
	metrics.RunsTotal.WithLabelValues(rep.State).Inc()

	for _, a := range rep.Accounts {
		log.Infow("account_summary", "account", a.Email, "sent", a.Sent, "limit", a.Limit)
	}
	log.Infow("run_finished",
		"state", rep.State,
		"sent", rep.TotalSent(),
		"failed", rep.Failed,
		"skipped_sent", rep.SkippedSent,
		"skipped_unsubscribed", rep.SkippedUnsubscribed,
		"skipped_invalid", rep.SkippedInvalid,
	)
	return rep
}

func accountReports(accounts []campaign.SenderAccount, counts []int) []campaign.AccountReport {
	out := make([]campaign.AccountReport, len(accounts))
	for i, acc := range accounts {
		out[i] = campaign.AccountReport{Email: acc.Email, Limit: acc.DailyLimit}
		if i < len(counts) {
			out[i].Sent = counts[i]
		}
	}
	return out
}

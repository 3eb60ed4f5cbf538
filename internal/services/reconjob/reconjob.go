// Package reconjob сверяет зависшие PENDING-транзакции со шлюзом оплаты.
// По умолчанию прогон сухой: считает и репортит, но ничего не мутирует.
package reconjob

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/govalues/decimal"
	"github.com/parcelbay/reconbox/internal/broker/messages"
	"github.com/parcelbay/reconbox/internal/integrations/gateway"
	"github.com/parcelbay/reconbox/internal/models"
	"github.com/parcelbay/reconbox/internal/services/batch"
	"github.com/parcelbay/reconbox/internal/status"
	"github.com/parcelbay/reconbox/internal/storage/pgrecon"
	"github.com/pkg/errors"
)

type Repository interface {
	ListPendingTransactions(ctx context.Context, limit int) ([]*models.Transaction, error)
	SettleTransaction(ctx context.Context, transactionID string, out pgrecon.GatewayOutcome) (pgrecon.SettleResult, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Job struct {
	repo     Repository
	gateway  gateway.Client
	producer Producer

	topic string

	runner    *batch.Runner
	batchSize int

	lastRunUnixNano atomic.Int64
	totalRuns       atomic.Int64
	totalItems      atomic.Int64
	totalCredited   atomic.Int64
	totalErrors     atomic.Int64
	lastErrorMu     sync.Mutex
	lastError       string
}

func New(repo Repository, g gateway.Client, producer Producer, topic string) *Job {
	return &Job{
		repo: repo, gateway: g, producer: producer, topic: topic,
		runner:    batch.New(200 * time.Millisecond),
		batchSize: 1000,
	}
}

func (j *Job) WithSettings(itemDelay time.Duration, batchSize int) *Job {
	if itemDelay > 0 {
		j.runner = batch.New(itemDelay)
	}
	if batchSize > 0 {
		j.batchSize = batchSize
	}
	return j
}

// Summary — отчёт одного прогона. В сухом режиме Credited/Failed означают
// "было бы", TotalCredited — сумму, которая была бы зачислена.
type Summary struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Execute    bool      `json:"execute"`

	Total           int `json:"total"`
	StillPending    int `json:"stillPending"`
	Credited        int `json:"credited"`
	Failed          int `json:"failed"`
	AlreadyTerminal int `json:"alreadyTerminal"`

	TotalCredited decimal.Decimal `json:"totalCredited"`

	UnknownStatuses []string          `json:"unknownStatuses,omitempty"`
	Errors          []batch.ItemError `json:"-"`
	ErrorMessages   []string          `json:"errors,omitempty"`
}

// ReconcileAll сверяет все PENDING-транзакции. execute=false — сухой прогон.
func (j *Job) ReconcileAll(ctx context.Context, execute bool) (Summary, error) {
	items, err := j.repo.ListPendingTransactions(ctx, j.batchSize)
	if err != nil {
		j.noteError(err)
		return Summary{}, errors.Wrap(err, "list pending transactions")
	}

	sum := Summary{StartedAt: time.Now().UTC(), Execute: execute, Total: len(items)}
	j.totalRuns.Add(1)
	j.lastRunUnixNano.Store(sum.StartedAt.UnixNano())

	errs, runErr := j.runner.Run(ctx, len(items),
		func(i int) string { return items[i].TransactionID },
		func(ctx context.Context, i int) error {
			return j.reconcileOne(ctx, items[i], execute, &sum)
		})
	if runErr != nil {
		slog.Warn("reconcile batch interrupted", "error", runErr.Error())
	}
	sum.Errors = errs
	for _, e := range errs {
		sum.ErrorMessages = append(sum.ErrorMessages, fmt.Sprintf("%s: %s", e.Ref, e.Err.Error()))
		j.noteError(e.Err)
	}
	j.totalItems.Add(int64(len(items)))
	j.totalErrors.Add(int64(len(errs)))
	sum.FinishedAt = time.Now().UTC()
	return sum, nil
}

func (j *Job) reconcileOne(ctx context.Context, tr *models.Transaction, execute bool, sum *Summary) error {
	st, err := j.gateway.FetchPaymentStatus(ctx, tr.GatewayOrderRef)
	if err != nil {
		return errors.Wrap(err, "fetch payment status")
	}

	canonical := status.MapPayment(st.Status)
	switch canonical {
	case models.PaymentStatusPending:
		sum.StillPending++
		return nil
	case models.PaymentStatusUnknown:
		// Незнакомый код шлюза приравниваем к "ещё висит": лучше
		// недосверить, чем зачислить по непонятному статусу.
		slog.Warn("unknown gateway status",
			"transaction_id", tr.TransactionID, "raw_status", st.Status)
		appendUnique(&sum.UnknownStatuses, st.Status)
		sum.StillPending++
		return nil
	}

	if !execute {
		if canonical == models.PaymentStatusCompleted {
			sum.Credited++
			total, err := sum.TotalCredited.Add(tr.Amount)
			if err != nil {
				return errors.Wrap(err, "sum credit amount")
			}
			sum.TotalCredited = total
			slog.Info("dry run: would credit wallet",
				"transaction_id", tr.TransactionID,
				"user_id", tr.UserID,
				"amount", tr.Amount.String())
		} else {
			sum.Failed++
			slog.Info("dry run: would mark failed",
				"transaction_id", tr.TransactionID, "raw_status", st.Status)
		}
		return nil
	}

	out := pgrecon.GatewayOutcome{
		Status:        canonical,
		RawStatus:     st.Status,
		BankRefNo:     st.BankRefNo,
		PaymentMethod: st.PaymentMethod,
		ErrorMessage:  st.ErrorMessage,
	}
	res, err := j.repo.SettleTransaction(ctx, tr.TransactionID, out)
	if err != nil {
		return errors.Wrap(err, "settle transaction")
	}
	if res.AlreadyTerminal {
		sum.AlreadyTerminal++
		return nil
	}

	if canonical == models.PaymentStatusFailed {
		sum.Failed++
		j.publishSettled(ctx, tr, canonical, decimal.Decimal{}, st.ErrorMessage, false)
		return nil
	}

	sum.Credited++
	total, err := sum.TotalCredited.Add(tr.Amount)
	if err != nil {
		return errors.Wrap(err, "sum credit amount")
	}
	sum.TotalCredited = total
	j.totalCredited.Add(1)
	slog.Info("wallet credited",
		"transaction_id", tr.TransactionID,
		"user_id", tr.UserID,
		"amount", tr.Amount.String(),
		"closing_balance", res.ClosingBalance.String())
	j.publishSettled(ctx, tr, canonical, res.ClosingBalance, "", true)
	return nil
}

// publishSettled — событие после фиксации в БД; сбой публикации не
// откатывает расчёт, поэтому только warning.
func (j *Job) publishSettled(ctx context.Context, tr *models.Transaction, canonical string, closing decimal.Decimal, errorMessage string, credited bool) {
	if j.producer == nil || j.topic == "" {
		return
	}
	msg := messages.TransactionSettled{
		TransactionID: tr.TransactionID,
		Status:        canonical,
		Amount:        tr.Amount.String(),
		ErrorMessage:  errorMessage,
		SettledAt:     time.Now().UTC(),
	}
	if credited {
		msg.ClosingBalance = closing.String()
	}
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("marshal settled event", "error", err.Error())
		return
	}
	if err := j.producer.Publish(ctx, j.topic, []byte(tr.TransactionID), b); err != nil {
		slog.Warn("publish settled event",
			"transaction_id", tr.TransactionID, "error", err.Error())
	}
}

type Stats struct {
	LastRunAt     *time.Time `json:"lastRunAt,omitempty"`
	TotalRuns     int64      `json:"totalRuns"`
	TotalItems    int64      `json:"totalItems"`
	TotalCredited int64      `json:"totalCredited"`
	TotalErrors   int64      `json:"totalErrors"`
	LastError     string     `json:"lastError,omitempty"`
}

func (j *Job) Stats() Stats {
	st := Stats{
		TotalRuns:     j.totalRuns.Load(),
		TotalItems:    j.totalItems.Load(),
		TotalCredited: j.totalCredited.Load(),
		TotalErrors:   j.totalErrors.Load(),
	}
	if n := j.lastRunUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastRunAt = &t
	}
	j.lastErrorMu.Lock()
	st.LastError = j.lastError
	j.lastErrorMu.Unlock()
	return st
}

func (j *Job) noteError(err error) {
	j.lastErrorMu.Lock()
	j.lastError = err.Error()
	j.lastErrorMu.Unlock()
}

func appendUnique(list *[]string, v string) {
	for _, s := range *list {
		if s == v {
			return
		}
	}
	*list = append(*list, v)
}

// Package syncjob сверяет активные отправления с tracking API перевозчика
// и проецирует канонический статус на внутренние записи.
package syncjob

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parcelbay/reconbox/internal/broker/messages"
	"github.com/parcelbay/reconbox/internal/integrations/carrier"
	"github.com/parcelbay/reconbox/internal/models"
	"github.com/parcelbay/reconbox/internal/services/batch"
	"github.com/parcelbay/reconbox/internal/status"
	"github.com/parcelbay/reconbox/internal/storage/pgrecon"
	"github.com/pkg/errors"
)

type Repository interface {
	ListActiveShipments(ctx context.Context, limit int) ([]*models.Shipment, error)
	GetShipmentByRef(ctx context.Context, shipmentRef string) (*models.Shipment, error)
	ApplyStatus(ctx context.Context, shipmentRef string, ext models.ExtractedStatus, canonical string) (pgrecon.ApplyResult, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Job struct {
	repo     Repository
	carrier  carrier.Client
	producer Producer
	rl       RateLimiter

	topic string

	runner             *batch.Runner
	batchSize          int
	rateLimitPerMinute int64

	startedAtUnixNano int64
	lastRunUnixNano   atomic.Int64
	totalRuns         atomic.Int64
	totalItems        atomic.Int64
	totalChanged      atomic.Int64
	totalErrors       atomic.Int64
	lastErrorMu       sync.Mutex
	lastError         string
}

func New(repo Repository, c carrier.Client, producer Producer, rl RateLimiter, topic string) *Job {
	return &Job{
		repo: repo, carrier: c, producer: producer, rl: rl, topic: topic,
		runner:             batch.New(300 * time.Millisecond),
		batchSize:          500,
		rateLimitPerMinute: 120,
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (j *Job) WithSettings(itemDelay time.Duration, batchSize int, rlPerMin int64) *Job {
	if itemDelay > 0 {
		j.runner = batch.New(itemDelay)
	}
	if batchSize > 0 {
		j.batchSize = batchSize
	}
	if rlPerMin > 0 {
		j.rateLimitPerMinute = rlPerMin
	}
	return j
}

// Summary — отчёт одного прогона для оператора.
type Summary struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	Total     int `json:"total"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
	NotFound  int `json:"notFound"`
	Terminal  int `json:"terminal"`

	// UnknownStatuses — сырые статусы вне таблицы нормализации.
	// Так обнаруживаются новые коды перевозчика.
	UnknownStatuses []string          `json:"unknownStatuses,omitempty"`
	Errors          []batch.ItemError `json:"-"`
	ErrorMessages   []string          `json:"errors,omitempty"`
}

// SyncAll прогоняет все активные отправления. Ошибка одного отправления не
// прерывает пачку; ошибка листинга — фатальна.
func (j *Job) SyncAll(ctx context.Context) (Summary, error) {
	items, err := j.repo.ListActiveShipments(ctx, j.batchSize)
	if err != nil {
		j.noteError(err)
		return Summary{}, errors.Wrap(err, "list active shipments")
	}
	return j.run(ctx, items), nil
}

// SyncOne синкает одно отправление по ref (ручной запуск).
func (j *Job) SyncOne(ctx context.Context, shipmentRef string) (Summary, error) {
	sh, err := j.repo.GetShipmentByRef(ctx, shipmentRef)
	if err != nil {
		j.noteError(err)
		return Summary{}, errors.Wrapf(err, "get shipment %s", shipmentRef)
	}
	return j.run(ctx, []*models.Shipment{sh}), nil
}

func (j *Job) run(ctx context.Context, items []*models.Shipment) Summary {
	sum := Summary{StartedAt: time.Now().UTC(), Total: len(items)}
	j.totalRuns.Add(1)
	j.lastRunUnixNano.Store(sum.StartedAt.UnixNano())

	errs, runErr := j.runner.Run(ctx, len(items),
		func(i int) string { return items[i].ShipmentRef },
		func(ctx context.Context, i int) error {
			return j.syncShipment(ctx, items[i], &sum)
		})
	if runErr != nil {
		slog.Warn("sync batch interrupted", "error", runErr.Error())
	}
	sum.Errors = errs
	for _, e := range errs {
		sum.ErrorMessages = append(sum.ErrorMessages, fmt.Sprintf("%s: %s", e.Ref, e.Err.Error()))
		j.noteError(e.Err)
	}
	j.totalItems.Add(int64(len(items)))
	j.totalErrors.Add(int64(len(errs)))
	sum.FinishedAt = time.Now().UTC()
	return sum
}

func (j *Job) syncShipment(ctx context.Context, sh *models.Shipment, sum *Summary) error {
	now := time.Now().UTC()

	if j.rl != nil && j.rateLimitPerMinute > 0 {
		minuteKey := fmt.Sprintf("rl:carrier:%s", now.Format("200601021504"))
		allowed, n, err := j.rl.Allow(ctx, minuteKey, j.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			return err
		}
		if !allowed {
			// Квота минуты выбрана: притормозим, чтобы разгрузить источник.
			slog.Warn("carrier rate limit exceeded", "count", n)
			time.Sleep(500 * time.Millisecond)
		}
	}

	raw, err := j.carrier.FetchTrackingStatus(ctx, sh.ShipmentRef)
	if err != nil {
		return errors.Wrap(err, "fetch tracking status")
	}

	ext, ok := status.Extract(raw)
	if !ok {
		// Не ошибка: "в этом цикле новой информации нет".
		slog.Debug("no status found in carrier payload", "shipment_ref", sh.ShipmentRef)
		sum.NotFound++
		return nil
	}

	canonical := status.MapShipment(ext.RawStatus)
	if canonical == models.ShipmentStatusUnknown {
		slog.Warn("unknown carrier status",
			"shipment_ref", sh.ShipmentRef,
			"raw_status", ext.RawStatus,
			"matched_path", ext.MatchedPath)
		appendUnique(&sum.UnknownStatuses, ext.RawStatus)
	}

	res, err := j.repo.ApplyStatus(ctx, sh.ShipmentRef, ext, canonical)
	if err != nil {
		return errors.Wrap(err, "apply status")
	}

	if res.Terminal {
		sum.Terminal++
	}
	if !res.Changed {
		sum.Unchanged++
		return nil
	}
	sum.Changed++
	j.totalChanged.Add(1)

	j.publishChanged(ctx, sh, ext, canonical, now)
	return nil
}

// publishChanged шлёт событие для downstream (уведомления, аналитика).
// Запись уже зафиксирована в БД, поэтому сбой публикации — warning, не ошибка
// элемента: следующий цикл событие не повторит, но состояние консистентно.
func (j *Job) publishChanged(ctx context.Context, sh *models.Shipment, ext models.ExtractedStatus, canonical string, now time.Time) {
	if j.producer == nil || j.topic == "" {
		return
	}
	msg := messages.ShipmentStatusChanged{
		ShipmentRef: sh.ShipmentRef,
		OrderRef:    sh.OrderRef,
		Status:      canonical,
		StatusRaw:   ext.RawStatus,
		Location:    ext.Location,
		OccurredAt:  ext.OccurredAt,
		Delivered:   models.ShipmentStatusTerminal(canonical),
		SyncedAt:    now,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("marshal status changed event", "error", err.Error())
		return
	}
	if err := j.producer.Publish(ctx, j.topic, []byte(sh.ShipmentRef), b); err != nil {
		slog.Warn("publish status changed event",
			"shipment_ref", sh.ShipmentRef, "error", err.Error())
	}
}

type Stats struct {
	StartedAt    time.Time  `json:"startedAt"`
	LastRunAt    *time.Time `json:"lastRunAt,omitempty"`
	TotalRuns    int64      `json:"totalRuns"`
	TotalItems   int64      `json:"totalItems"`
	TotalChanged int64      `json:"totalChanged"`
	TotalErrors  int64      `json:"totalErrors"`
	LastError    string     `json:"lastError,omitempty"`
}

func (j *Job) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, j.startedAtUnixNano).UTC(),
		TotalRuns:    j.totalRuns.Load(),
		TotalItems:   j.totalItems.Load(),
		TotalChanged: j.totalChanged.Load(),
		TotalErrors:  j.totalErrors.Load(),
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

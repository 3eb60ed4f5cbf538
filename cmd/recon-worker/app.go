package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/parcelbay/reconbox/config"
	"github.com/parcelbay/reconbox/internal/broker/kafka"
	"github.com/parcelbay/reconbox/internal/broker/messages"
	"github.com/parcelbay/reconbox/internal/cache"
	"github.com/parcelbay/reconbox/internal/cache/rediscache"
	"github.com/parcelbay/reconbox/internal/integrations/carrier"
	carrierfake "github.com/parcelbay/reconbox/internal/integrations/carrier/fake"
	"github.com/parcelbay/reconbox/internal/integrations/carrier/shiphttp"
	"github.com/parcelbay/reconbox/internal/integrations/gateway"
	gatewayfake "github.com/parcelbay/reconbox/internal/integrations/gateway/fake"
	"github.com/parcelbay/reconbox/internal/integrations/gateway/payhttp"
	"github.com/parcelbay/reconbox/internal/models"
	"github.com/parcelbay/reconbox/internal/services/reconjob"
	"github.com/parcelbay/reconbox/internal/services/shipments"
	"github.com/parcelbay/reconbox/internal/services/syncjob"
	"github.com/parcelbay/reconbox/internal/storage/pgrecon"
)

// storage — всё, что воркеру нужно от БД; *pgrecon.Storage покрывает целиком.
type storage interface {
	syncjob.Repository
	reconjob.Repository
	shipments.Repository
	CreateTransaction(ctx context.Context, in models.TransactionCreateInput) (*models.Transaction, error)
}

// consumer — подписка на собственный фид изменений; реплики воркера через
// него сбрасывают кэш отправлений друг у друга.
type consumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
	Close() error
}

type workerFactories struct {
	newStorage       func(cfg *config.Config) (st storage, closeFn func(), err error)
	newProducer      func(cfg *config.Config) syncjob.Producer
	newConsumer      func(cfg *config.Config, topic string) consumer
	newRateLimiter   func(cfg *config.Config) syncjob.RateLimiter
	newCache         func(cfg *config.Config) cache.BytesCache
	newCarrierClient func(cfg *config.Config) carrier.Client
	newGatewayClient func(cfg *config.Config) gateway.Client
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (storage, func(), error) {
			st, err := pgrecon.New(cfg.DatabaseDSN())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) syncjob.Producer {
			return kafka.NewProducer([]string{cfg.KafkaAddr()})
		},
		newConsumer: func(cfg *config.Config, topic string) consumer {
			group := cfg.ReconBox.KafkaConsumerGroup
			if group == "" {
				group = "recon-worker"
			}
			return kafka.NewConsumer([]string{cfg.KafkaAddr()}, topic, group)
		},
		newRateLimiter: func(cfg *config.Config) syncjob.RateLimiter {
			return rediscache.NewRateLimiter(cfg.RedisAddr())
		},
		newCache: func(cfg *config.Config) cache.BytesCache {
			return rediscache.New(cfg.RedisAddr())
		},
		newCarrierClient: func(cfg *config.Config) carrier.Client {
			// Боевой клиент только при явном http-режиме с base_url,
			// иначе детерминированный локальный fake (демо, стенды).
			if cfg.ReconBox.CarrierMode == "http" && cfg.ReconBox.CarrierBaseURL != "" {
				return shiphttp.New(cfg.ReconBox.CarrierBaseURL, cfg.ReconBox.CarrierAPIKey)
			}
			return carrierfake.New()
		},
		newGatewayClient: func(cfg *config.Config) gateway.Client {
			if cfg.ReconBox.GatewayMode == "http" && cfg.ReconBox.GatewayBaseURL != "" {
				return payhttp.New(cfg.ReconBox.GatewayBaseURL, cfg.ReconBox.GatewayMerchantID, cfg.ReconBox.GatewayAPIKey)
			}
			return gatewayfake.New()
		},
	}
}

type worker struct {
	syncJob  *syncjob.Job
	reconJob *reconjob.Job
	svc      *shipments.Service
	store    storage

	syncInterval  time.Duration
	reconInterval time.Duration
	execute       bool

	triggerSync  chan struct{}
	triggerRecon chan struct{}
}

func (w *worker) TriggerSync() {
	select {
	case w.triggerSync <- struct{}{}:
	default:
	}
}

func (w *worker) TriggerReconcile() {
	select {
	case w.triggerRecon <- struct{}{}:
	default:
	}
}

func (w *worker) run(ctx context.Context) error {
	syncTicker := time.NewTicker(w.syncInterval)
	defer syncTicker.Stop()
	reconTicker := time.NewTicker(w.reconInterval)
	defer reconTicker.Stop()

	slog.Info("recon worker started",
		"sync_interval", w.syncInterval.String(),
		"reconcile_interval", w.reconInterval.String(),
		"reconcile_execute", w.execute)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-syncTicker.C:
			w.runSync(ctx)
		case <-w.triggerSync:
			w.runSync(ctx)
		case <-reconTicker.C:
			w.runReconcile(ctx)
		case <-w.triggerRecon:
			w.runReconcile(ctx)
		}
	}
}

func (w *worker) runSync(ctx context.Context) {
	sum, err := w.syncJob.SyncAll(ctx)
	if err != nil {
		slog.Error("shipment sync failed", "error", err.Error())
		return
	}
	slog.Info("shipment sync finished",
		"total", sum.Total,
		"changed", sum.Changed,
		"unchanged", sum.Unchanged,
		"not_found", sum.NotFound,
		"terminal", sum.Terminal,
		"errors", len(sum.Errors))
}

// statusChangedHandler сбрасывает кэш отправления по событию из фида.
// Публикует одна реплика, кэш держат все; без инвалидации чужая реплика
// отдавала бы устаревший статус до истечения TTL.
func (w *worker) statusChangedHandler(ctx context.Context) func(key, value []byte) error {
	return func(key, value []byte) error {
		var msg messages.ShipmentStatusChanged
		if err := json.Unmarshal(value, &msg); err != nil {
			// Битое сообщение пропускаем, иначе встанет вся партиция.
			slog.Warn("malformed status changed event", "error", err.Error())
			return nil
		}
		if msg.ShipmentRef != "" {
			w.svc.Invalidate(ctx, msg.ShipmentRef)
		}
		return nil
	}
}

func (w *worker) runReconcile(ctx context.Context) {
	sum, err := w.reconJob.ReconcileAll(ctx, w.execute)
	if err != nil {
		slog.Error("payment reconcile failed", "error", err.Error())
		return
	}
	slog.Info("payment reconcile finished",
		"execute", sum.Execute,
		"total", sum.Total,
		"credited", sum.Credited,
		"failed", sum.Failed,
		"still_pending", sum.StillPending,
		"already_terminal", sum.AlreadyTerminal,
		"total_credited", sum.TotalCredited.String(),
		"errors", len(sum.Errors))
}

func RunReconWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	statusTopic := cfg.Kafka.ShipmentStatusChangedTopic
	if statusTopic == "" {
		statusTopic = "shipment.status.changed"
	}
	settledTopic := cfg.Kafka.TransactionSettledTopicName
	if settledTopic == "" {
		settledTopic = "transaction.settled"
	}

	syncInterval := time.Duration(cfg.ReconBox.SyncIntervalSeconds) * time.Second
	if syncInterval <= 0 {
		syncInterval = 10 * time.Minute
	}
	reconInterval := time.Duration(cfg.ReconBox.ReconcileIntervalSeconds) * time.Second
	if reconInterval <= 0 {
		reconInterval = 15 * time.Minute
	}
	cacheTTL := time.Duration(cfg.ReconBox.ShipmentCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}

	st, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)

	sj := syncjob.New(st, f.newCarrierClient(cfg), producer, rl, statusTopic).
		WithSettings(
			time.Duration(cfg.ReconBox.SyncItemDelayMillis)*time.Millisecond,
			cfg.ReconBox.SyncBatchSize,
			int64(cfg.ReconBox.SyncRateLimitPerMinute),
		)
	rj := reconjob.New(st, f.newGatewayClient(cfg), producer, settledTopic).
		WithSettings(
			time.Duration(cfg.ReconBox.ReconcileItemDelayMillis)*time.Millisecond,
			cfg.ReconBox.ReconcileBatchSize,
		)
	svc := shipments.New(st, f.newCache(cfg), cacheTTL)

	w := &worker{
		syncJob:       sj,
		reconJob:      rj,
		svc:           svc,
		store:         st,
		syncInterval:  syncInterval,
		reconInterval: reconInterval,
		execute:       cfg.ReconBox.ReconcileExecute,
		triggerSync:   make(chan struct{}, 1),
		triggerRecon:  make(chan struct{}, 1),
	}

	go func() {
		err := runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr: cfg.ReconBox.HTTPAddr,
			worker:   w,
			cfg:      cfg,
		})
		if err != nil && err != context.Canceled {
			slog.Error("worker http server stopped", "error", err.Error())
		}
	}()

	if f.newConsumer != nil {
		c := f.newConsumer(cfg, statusTopic)
		go func() {
			defer func() { _ = c.Close() }()
			if err := c.Consume(ctx, w.statusChangedHandler(ctx)); err != nil && ctx.Err() == nil {
				slog.Error("status changed consumer stopped", "error", err.Error())
			}
		}()
	}

	return w.run(ctx)
}

// recon-cli — ручной запуск джобов сверки: разовый синк отправлений или
// сверка платежей, с JSON-отчётом в stdout. Конфиг тот же, что у воркера.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parcelbay/reconbox/config"
	"github.com/parcelbay/reconbox/internal/broker/kafka"
	"github.com/parcelbay/reconbox/internal/cache/rediscache"
	"github.com/parcelbay/reconbox/internal/integrations/carrier"
	carrierfake "github.com/parcelbay/reconbox/internal/integrations/carrier/fake"
	"github.com/parcelbay/reconbox/internal/integrations/carrier/shiphttp"
	"github.com/parcelbay/reconbox/internal/integrations/gateway"
	gatewayfake "github.com/parcelbay/reconbox/internal/integrations/gateway/fake"
	"github.com/parcelbay/reconbox/internal/integrations/gateway/payhttp"
	"github.com/parcelbay/reconbox/internal/services/reconjob"
	"github.com/parcelbay/reconbox/internal/services/syncjob"
	"github.com/parcelbay/reconbox/internal/storage/pgrecon"
)

func main() {
	var (
		mode    = flag.String("mode", "", "sync-all | sync-one | reconcile")
		ref     = flag.String("ref", "", "shipment_ref для -mode=sync-one")
		execute = flag.Bool("execute", false, "боевой режим для -mode=reconcile (по умолчанию сухой прогон)")
	)
	flag.Parse()

	if err := run(*mode, *ref, *execute); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(mode, ref string, execute bool) error {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := pgrecon.New(cfg.DatabaseDSN())
	if err != nil {
		return fmt.Errorf("connect storage: %w", err)
	}
	defer st.Close()

	producer := kafka.NewProducer([]string{cfg.KafkaAddr()})

	switch mode {
	case "sync-all", "sync-one":
		topic := cfg.Kafka.ShipmentStatusChangedTopic
		if topic == "" {
			topic = "shipment.status.changed"
		}
		j := syncjob.New(st, carrierClient(cfg), producer, rediscache.NewRateLimiter(cfg.RedisAddr()), topic).
			WithSettings(
				time.Duration(cfg.ReconBox.SyncItemDelayMillis)*time.Millisecond,
				cfg.ReconBox.SyncBatchSize,
				int64(cfg.ReconBox.SyncRateLimitPerMinute),
			)

		var sum syncjob.Summary
		if mode == "sync-one" {
			if ref == "" {
				return fmt.Errorf("-ref is required for -mode=sync-one")
			}
			sum, err = j.SyncOne(ctx, ref)
		} else {
			sum, err = j.SyncAll(ctx)
		}
		if err != nil {
			return err
		}
		return printJSON(sum)

	case "reconcile":
		topic := cfg.Kafka.TransactionSettledTopicName
		if topic == "" {
			topic = "transaction.settled"
		}
		j := reconjob.New(st, gatewayClient(cfg), producer, topic).
			WithSettings(
				time.Duration(cfg.ReconBox.ReconcileItemDelayMillis)*time.Millisecond,
				cfg.ReconBox.ReconcileBatchSize,
			)
		sum, err := j.ReconcileAll(ctx, execute)
		if err != nil {
			return err
		}
		return printJSON(sum)

	default:
		return fmt.Errorf("unknown -mode %q, want sync-all | sync-one | reconcile", mode)
	}
}

func carrierClient(cfg *config.Config) carrier.Client {
	if cfg.ReconBox.CarrierMode == "http" && cfg.ReconBox.CarrierBaseURL != "" {
		return shiphttp.New(cfg.ReconBox.CarrierBaseURL, cfg.ReconBox.CarrierAPIKey)
	}
	return carrierfake.New()
}

func gatewayClient(cfg *config.Config) gateway.Client {
	if cfg.ReconBox.GatewayMode == "http" && cfg.ReconBox.GatewayBaseURL != "" {
		return payhttp.New(cfg.ReconBox.GatewayBaseURL, cfg.ReconBox.GatewayMerchantID, cfg.ReconBox.GatewayAPIKey)
	}
	return gatewayfake.New()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

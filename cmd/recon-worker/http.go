package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/govalues/decimal"
	"github.com/parcelbay/reconbox/config"
	"github.com/parcelbay/reconbox/internal/models"
)

type workerHTTPOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	worker *worker
	cfg    *config.Config
}

func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.worker == nil {
			_, _ = w.Write([]byte(`{"error":"worker not wired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sync":      opts.worker.syncJob.Stats(),
			"reconcile": opts.worker.reconJob.Stats(),
		})
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.cfg == nil {
			_, _ = w.Write([]byte(`{"error":"config not wired"}`))
			return
		}
		// Секреты не выдаём, только операционные настройки.
		out := map[string]any{
			"syncIntervalSeconds":      opts.cfg.ReconBox.SyncIntervalSeconds,
			"reconcileIntervalSeconds": opts.cfg.ReconBox.ReconcileIntervalSeconds,
			"reconcileExecute":         opts.cfg.ReconBox.ReconcileExecute,
			"syncBatchSize":            opts.cfg.ReconBox.SyncBatchSize,
			"syncRateLimitPerMinute":   opts.cfg.ReconBox.SyncRateLimitPerMinute,
			"reconcileBatchSize":       opts.cfg.ReconBox.ReconcileBatchSize,
			"carrierMode":              opts.cfg.ReconBox.CarrierMode,
			"gatewayMode":              opts.cfg.ReconBox.GatewayMode,
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Post("/trigger/sync", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.worker == nil {
			_, _ = w.Write([]byte(`{"error":"worker not wired"}`))
			return
		}
		opts.worker.TriggerSync()
		_, _ = w.Write([]byte(`{"triggered":true}`))
	})
	r.Post("/trigger/reconcile", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.worker == nil {
			_, _ = w.Write([]byte(`{"error":"worker not wired"}`))
			return
		}
		opts.worker.TriggerReconcile()
		_, _ = w.Write([]byte(`{"triggered":true}`))
	})

	r.Post("/shipments", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.worker == nil {
			http.Error(w, `{"error":"worker not wired"}`, http.StatusServiceUnavailable)
			return
		}
		var in []models.ShipmentCreateInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || len(in) == 0 {
			http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
			return
		}
		out, err := opts.worker.svc.Register(r.Context(), in)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Post("/transactions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.worker == nil {
			http.Error(w, `{"error":"worker not wired"}`, http.StatusServiceUnavailable)
			return
		}
		var in struct {
			TransactionID   string `json:"transaction_id"`
			GatewayOrderRef string `json:"gateway_order_ref"`
			UserID          uint64 `json:"user_id"`
			Amount          string `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
			return
		}
		amount, err := decimal.Parse(in.Amount)
		if err != nil || in.TransactionID == "" || in.GatewayOrderRef == "" || in.UserID == 0 {
			http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
			return
		}
		tr, err := opts.worker.store.CreateTransaction(r.Context(), models.TransactionCreateInput{
			TransactionID:   in.TransactionID,
			GatewayOrderRef: in.GatewayOrderRef,
			UserID:          in.UserID,
			Amount:          amount,
		})
		if err == models.ErrConflict {
			http.Error(w, `{"error":"transaction already exists"}`, http.StatusConflict)
			return
		}
		if err != nil {
			http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(tr)
	})

	r.Get("/shipments/{ref}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.worker == nil {
			http.Error(w, `{"error":"worker not wired"}`, http.StatusServiceUnavailable)
			return
		}
		sh, err := opts.worker.svc.GetByRef(r.Context(), chi.URLParam(r, "ref"))
		if err == models.ErrNotFound {
			http.Error(w, `{"error":"shipment not found"}`, http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(sh)
	})

	r.Get("/shipments/{ref}/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.worker == nil {
			http.Error(w, `{"error":"worker not wired"}`, http.StatusServiceUnavailable)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		evs, err := opts.worker.svc.ListEvents(r.Context(), chi.URLParam(r, "ref"), limit, offset)
		if err == models.ErrNotFound {
			http.Error(w, `{"error":"shipment not found"}`, http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
			return
		}
		if evs == nil {
			evs = []*models.ShipmentEvent{}
		}
		_ = json.NewEncoder(w).Encode(evs)
	})

	r.Get("/orders/{ref}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.worker == nil {
			http.Error(w, `{"error":"worker not wired"}`, http.StatusServiceUnavailable)
			return
		}
		p, err := opts.worker.svc.GetOrder(r.Context(), chi.URLParam(r, "ref"))
		if err == models.ErrNotFound {
			http.Error(w, `{"error":"order not found"}`, http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(p)
	})

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}

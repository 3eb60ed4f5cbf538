// Package shipments — регистрация отправлений и чтение их состояния.
// Чтение по ref горячее (операторские ручки, интеграции), поэтому
// прикрыто кэшем с коротким TTL.
package shipments

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/parcelbay/reconbox/internal/cache"
	"github.com/parcelbay/reconbox/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	CreateShipments(ctx context.Context, items []models.ShipmentCreateInput) ([]*models.Shipment, error)
	GetShipmentByRef(ctx context.Context, shipmentRef string) (*models.Shipment, error)
	ListShipmentEvents(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.ShipmentEvent, error)
	GetOrderProjection(ctx context.Context, orderRef string) (*models.OrderProjection, error)
}

type Service struct {
	repo  Repository
	cache cache.BytesCache
	ttl   time.Duration
}

func New(repo Repository, c cache.BytesCache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Service{repo: repo, cache: c, ttl: ttl}
}

// Register заводит отправления под синк. Повторная регистрация того же
// shipment_ref безвредна: существующая запись не перетирается.
func (s *Service) Register(ctx context.Context, items []models.ShipmentCreateInput) ([]*models.Shipment, error) {
	for _, it := range items {
		if it.ShipmentRef == "" || it.OrderRef == "" {
			return nil, errors.New("shipment_ref and order_ref are required")
		}
	}
	out, err := s.repo.CreateShipments(ctx, items)
	if err != nil {
		return nil, err
	}
	for _, sh := range out {
		s.invalidate(ctx, sh.ShipmentRef)
	}
	return out, nil
}

func (s *Service) GetByRef(ctx context.Context, shipmentRef string) (*models.Shipment, error) {
	key := cacheKey(shipmentRef)
	if s.cache != nil {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var sh models.Shipment
			if err := json.Unmarshal(b, &sh); err == nil {
				return &sh, nil
			}
			// Битый кэш выкидываем и идём в БД.
			s.invalidate(ctx, shipmentRef)
		} else if err != nil {
			slog.Warn("shipment cache get", "error", err.Error())
		}
	}

	sh, err := s.repo.GetShipmentByRef(ctx, shipmentRef)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if b, err := json.Marshal(sh); err == nil {
			if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
				slog.Warn("shipment cache set", "error", err.Error())
			}
		}
	}
	return sh, nil
}

func (s *Service) ListEvents(ctx context.Context, shipmentRef string, limit, offset int) ([]*models.ShipmentEvent, error) {
	sh, err := s.GetByRef(ctx, shipmentRef)
	if err != nil {
		return nil, err
	}
	return s.repo.ListShipmentEvents(ctx, sh.ID, limit, offset)
}

func (s *Service) GetOrder(ctx context.Context, orderRef string) (*models.OrderProjection, error) {
	return s.repo.GetOrderProjection(ctx, orderRef)
}

// Invalidate сбрасывает кэш отправления; дергается после синка, чтобы
// операторские чтения не отдавали устаревший статус дольше TTL.
func (s *Service) Invalidate(ctx context.Context, shipmentRef string) {
	s.invalidate(ctx, shipmentRef)
}

func (s *Service) invalidate(ctx context.Context, shipmentRef string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cacheKey(shipmentRef)); err != nil {
		slog.Warn("shipment cache del", "error", err.Error())
	}
}

func cacheKey(shipmentRef string) string {
	return "shipment:" + shipmentRef
}

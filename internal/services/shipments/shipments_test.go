package shipments

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/parcelbay/reconbox/internal/cache/rediscache"
	"github.com/parcelbay/reconbox/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	shipments map[string]*models.Shipment
	events    map[uint64][]*models.ShipmentEvent
	getCalls  int
}

func (f *fakeRepo) CreateShipments(ctx context.Context, items []models.ShipmentCreateInput) ([]*models.Shipment, error) {
	var out []*models.Shipment
	for i, it := range items {
		sh, ok := f.shipments[it.ShipmentRef]
		if !ok {
			sh = &models.Shipment{
				ID:          uint64(len(f.shipments) + i + 1),
				ShipmentRef: it.ShipmentRef,
				OrderRef:    it.OrderRef,
				Status:      models.ShipmentStatusUnknown,
				Active:      true,
			}
			f.shipments[it.ShipmentRef] = sh
		}
		out = append(out, sh)
	}
	return out, nil
}

func (f *fakeRepo) GetShipmentByRef(ctx context.Context, shipmentRef string) (*models.Shipment, error) {
	f.getCalls++
	sh, ok := f.shipments[shipmentRef]
	if !ok {
		return nil, models.ErrNotFound
	}
	return sh, nil
}

func (f *fakeRepo) ListShipmentEvents(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.ShipmentEvent, error) {
	return f.events[shipmentID], nil
}

func (f *fakeRepo) GetOrderProjection(ctx context.Context, orderRef string) (*models.OrderProjection, error) {
	return nil, models.ErrNotFound
}

func newTestService(t *testing.T) (*Service, *fakeRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	repo := &fakeRepo{shipments: map[string]*models.Shipment{}, events: map[uint64][]*models.ShipmentEvent{}}
	return New(repo, rediscache.New(mr.Addr()), time.Minute), repo
}

func TestGetByRef_SecondReadHitsCache(t *testing.T) {
	svc, repo := newTestService(t)
	repo.shipments["AWB-1"] = &models.Shipment{ID: 1, ShipmentRef: "AWB-1", OrderRef: "ORD-1", Status: models.ShipmentStatusInTransit, Active: true}

	ctx := context.Background()
	first, err := svc.GetByRef(ctx, "AWB-1")
	require.NoError(t, err)
	second, err := svc.GetByRef(ctx, "AWB-1")
	require.NoError(t, err)

	require.Equal(t, first.ShipmentRef, second.ShipmentRef)
	require.Equal(t, first.Status, second.Status)
	require.Equal(t, 1, repo.getCalls)
}

func TestInvalidate_NextReadGoesToRepo(t *testing.T) {
	svc, repo := newTestService(t)
	repo.shipments["AWB-1"] = &models.Shipment{ID: 1, ShipmentRef: "AWB-1", Status: models.ShipmentStatusInTransit}

	ctx := context.Background()
	_, err := svc.GetByRef(ctx, "AWB-1")
	require.NoError(t, err)

	repo.shipments["AWB-1"].Status = models.ShipmentStatusDelivered
	svc.Invalidate(ctx, "AWB-1")

	sh, err := svc.GetByRef(ctx, "AWB-1")
	require.NoError(t, err)
	require.Equal(t, models.ShipmentStatusDelivered, sh.Status)
	require.Equal(t, 2, repo.getCalls)
}

func TestRegister_ValidatesAndInvalidates(t *testing.T) {
	svc, repo := newTestService(t)

	_, err := svc.Register(context.Background(), []models.ShipmentCreateInput{{ShipmentRef: "AWB-1"}})
	require.Error(t, err)

	out, err := svc.Register(context.Background(), []models.ShipmentCreateInput{
		{ShipmentRef: "AWB-1", OrderRef: "ORD-1"},
		{ShipmentRef: "AWB-2", OrderRef: "ORD-2"},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Len(t, repo.shipments, 2)
}

func TestGetByRef_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetByRef(context.Background(), "AWB-404")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestListEvents_ResolvesShipment(t *testing.T) {
	svc, repo := newTestService(t)
	repo.shipments["AWB-1"] = &models.Shipment{ID: 42, ShipmentRef: "AWB-1"}
	repo.events[42] = []*models.ShipmentEvent{{ID: 1, ShipmentID: 42, Status: models.ShipmentStatusInTransit}}

	events, err := svc.ListEvents(context.Background(), "AWB-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.EqualValues(t, 42, events[0].ShipmentID)
}

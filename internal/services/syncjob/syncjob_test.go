package syncjob

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/parcelbay/reconbox/internal/broker/messages"
	"github.com/parcelbay/reconbox/internal/models"
	"github.com/parcelbay/reconbox/internal/storage/pgrecon"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type applyCall struct {
	shipmentRef string
	ext         models.ExtractedStatus
	canonical   string
}

type fakeRepo struct {
	shipments []*models.Shipment
	applied   []applyCall
	results   map[string]pgrecon.ApplyResult
	applyErr  map[string]error
}

func (f *fakeRepo) ListActiveShipments(ctx context.Context, limit int) ([]*models.Shipment, error) {
	return f.shipments, nil
}

func (f *fakeRepo) GetShipmentByRef(ctx context.Context, shipmentRef string) (*models.Shipment, error) {
	for _, sh := range f.shipments {
		if sh.ShipmentRef == shipmentRef {
			return sh, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeRepo) ApplyStatus(ctx context.Context, shipmentRef string, ext models.ExtractedStatus, canonical string) (pgrecon.ApplyResult, error) {
	if err := f.applyErr[shipmentRef]; err != nil {
		return pgrecon.ApplyResult{}, err
	}
	f.applied = append(f.applied, applyCall{shipmentRef: shipmentRef, ext: ext, canonical: canonical})
	return f.results[shipmentRef], nil
}

type fakeCarrier struct {
	payloads map[string]string
	errs     map[string]error
}

func (f *fakeCarrier) FetchTrackingStatus(ctx context.Context, shipmentRef string) (json.RawMessage, error) {
	if err := f.errs[shipmentRef]; err != nil {
		return nil, err
	}
	return json.RawMessage(f.payloads[shipmentRef]), nil
}

type published struct {
	topic string
	key   string
	value []byte
}

type fakeProducer struct {
	msgs []published
	err  error
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{topic: topic, key: string(key), value: value})
	return nil
}

func nestedPayload(rawStatus string) string {
	return fmt.Sprintf(`{
	  "tracking_data": {
	    "shipment_track": [
	      {"current_status": %q, "current_status_location": "Moscow hub", "current_status_time": "2026-02-10 14:05:00"}
	    ]
	  }
	}`, rawStatus)
}

func shipment(ref, orderRef string) *models.Shipment {
	return &models.Shipment{ShipmentRef: ref, OrderRef: orderRef, Status: models.ShipmentStatusPickupPending, Active: true}
}

func newTestJob(repo *fakeRepo, c *fakeCarrier, p *fakeProducer) *Job {
	return New(repo, c, p, nil, "shipment.status.changed").WithSettings(time.Nanosecond, 0, 0)
}

func TestSyncAll_PublishesOnChange(t *testing.T) {
	repo := &fakeRepo{
		shipments: []*models.Shipment{shipment("AWB-1", "ORD-1"), shipment("AWB-2", "ORD-2")},
		results: map[string]pgrecon.ApplyResult{
			"AWB-1": {Changed: true, Terminal: true},
			"AWB-2": {Changed: false},
		},
	}
	c := &fakeCarrier{payloads: map[string]string{
		"AWB-1": nestedPayload("DELIVERED"),
		"AWB-2": nestedPayload("IN TRANSIT"),
	}}
	p := &fakeProducer{}

	sum, err := newTestJob(repo, c, p).SyncAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sum.Total)
	require.Equal(t, 1, sum.Changed)
	require.Equal(t, 1, sum.Unchanged)
	require.Equal(t, 1, sum.Terminal)
	require.Empty(t, sum.Errors)

	// Событие уходит только по реально изменившемуся отправлению.
	require.Len(t, p.msgs, 1)
	require.Equal(t, "shipment.status.changed", p.msgs[0].topic)
	require.Equal(t, "AWB-1", p.msgs[0].key)

	var msg messages.ShipmentStatusChanged
	require.NoError(t, json.Unmarshal(p.msgs[0].value, &msg))
	require.Equal(t, "ORD-1", msg.OrderRef)
	require.Equal(t, models.ShipmentStatusDelivered, msg.Status)
	require.Equal(t, "DELIVERED", msg.StatusRaw)
	require.Equal(t, "Moscow hub", msg.Location)
	require.True(t, msg.Delivered)
}

func TestSyncAll_RepeatRunPublishesNothing(t *testing.T) {
	repo := &fakeRepo{
		shipments: []*models.Shipment{shipment("AWB-1", "ORD-1")},
		results:   map[string]pgrecon.ApplyResult{"AWB-1": {Changed: false}},
	}
	c := &fakeCarrier{payloads: map[string]string{"AWB-1": nestedPayload("IN TRANSIT")}}
	p := &fakeProducer{}

	sum, err := newTestJob(repo, c, p).SyncAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Unchanged)
	require.Zero(t, sum.Changed)
	require.Empty(t, p.msgs)
}

func TestSyncAll_UnknownStatusIsRecordedAndApplied(t *testing.T) {
	repo := &fakeRepo{
		shipments: []*models.Shipment{shipment("AWB-1", "ORD-1")},
		results:   map[string]pgrecon.ApplyResult{"AWB-1": {Changed: false}},
	}
	c := &fakeCarrier{payloads: map[string]string{"AWB-1": nestedPayload("TELEPORTED")}}
	p := &fakeProducer{}

	sum, err := newTestJob(repo, c, p).SyncAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"TELEPORTED"}, sum.UnknownStatuses)
	require.Empty(t, p.msgs)

	// В хранилище уходит UNKNOWN: решение "не трогать запись" принимает оно.
	require.Len(t, repo.applied, 1)
	require.Equal(t, models.ShipmentStatusUnknown, repo.applied[0].canonical)
	require.Equal(t, "TELEPORTED", repo.applied[0].ext.RawStatus)
}

func TestSyncAll_ItemErrorDoesNotStopBatch(t *testing.T) {
	repo := &fakeRepo{
		shipments: []*models.Shipment{shipment("AWB-1", "ORD-1"), shipment("AWB-2", "ORD-2")},
		results:   map[string]pgrecon.ApplyResult{"AWB-2": {Changed: true}},
	}
	c := &fakeCarrier{
		payloads: map[string]string{"AWB-2": nestedPayload("OUT FOR DELIVERY")},
		errs:     map[string]error{"AWB-1": errors.New("503 from carrier")},
	}
	p := &fakeProducer{}

	sum, err := newTestJob(repo, c, p).SyncAll(context.Background())
	require.NoError(t, err)
	require.Len(t, sum.Errors, 1)
	require.Equal(t, "AWB-1", sum.Errors[0].Ref)
	require.Equal(t, 1, sum.Changed)
	require.Len(t, p.msgs, 1)
	require.Equal(t, "AWB-2", p.msgs[0].key)
}

func TestSyncAll_MissingStatusCountedAsNotFound(t *testing.T) {
	repo := &fakeRepo{shipments: []*models.Shipment{shipment("AWB-1", "ORD-1")}}
	c := &fakeCarrier{payloads: map[string]string{"AWB-1": `{"tracking_data": {"shipment_track": []}}`}}
	p := &fakeProducer{}

	sum, err := newTestJob(repo, c, p).SyncAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.NotFound)
	require.Empty(t, sum.Errors)
	require.Empty(t, repo.applied)
}

func TestSyncAll_PublishFailureDoesNotFailItem(t *testing.T) {
	repo := &fakeRepo{
		shipments: []*models.Shipment{shipment("AWB-1", "ORD-1")},
		results:   map[string]pgrecon.ApplyResult{"AWB-1": {Changed: true}},
	}
	c := &fakeCarrier{payloads: map[string]string{"AWB-1": nestedPayload("IN TRANSIT")}}
	p := &fakeProducer{err: errors.New("kafka down")}

	sum, err := newTestJob(repo, c, p).SyncAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, sum.Errors)
	require.Equal(t, 1, sum.Changed)
}

func TestSyncOne_UnknownRef(t *testing.T) {
	repo := &fakeRepo{}
	_, err := newTestJob(repo, &fakeCarrier{}, &fakeProducer{}).SyncOne(context.Background(), "AWB-404")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestStats_AccumulateAcrossRuns(t *testing.T) {
	repo := &fakeRepo{
		shipments: []*models.Shipment{shipment("AWB-1", "ORD-1")},
		results:   map[string]pgrecon.ApplyResult{"AWB-1": {Changed: true}},
	}
	c := &fakeCarrier{payloads: map[string]string{"AWB-1": nestedPayload("IN TRANSIT")}}
	j := newTestJob(repo, c, &fakeProducer{})

	_, err := j.SyncAll(context.Background())
	require.NoError(t, err)
	_, err = j.SyncAll(context.Background())
	require.NoError(t, err)

	st := j.Stats()
	require.EqualValues(t, 2, st.TotalRuns)
	require.EqualValues(t, 2, st.TotalItems)
	require.EqualValues(t, 2, st.TotalChanged)
	require.NotNil(t, st.LastRunAt)
}

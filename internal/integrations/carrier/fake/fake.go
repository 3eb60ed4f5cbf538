package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"
)

// FakeClient — локальная заглушка перевозчика для демо и тестов окружения.
// Статус детерминирован по shipmentRef; форма ответа тоже меняется по хэшу,
// чтобы прогонять все стратегии извлечения.
type FakeClient struct{}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) FetchTrackingStatus(ctx context.Context, shipmentRef string) (json.RawMessage, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(shipmentRef))
	v := h.Sum32()

	// 20% отправлений считаем доставленными.
	status := "IN TRANSIT"
	if v%5 == 0 {
		status = "DELIVERED"
	}
	now := time.Now().UTC().Format("2006-01-02 15:04:05")

	var payload string
	switch v % 3 {
	case 0:
		payload = fmt.Sprintf(`{
			"tracking_data": {
				"shipment_track": [
					{"current_status": %q, "current_status_location": "Fake Hub", "current_status_time": %q}
				]
			}
		}`, status, now)
	case 1:
		payload = fmt.Sprintf(`{"tracking_data": {"current_status": %q, "status_time": %q}}`, status, now)
	default:
		payload = fmt.Sprintf(`{"status": %q, "location": "Fake Hub", "status_date": %q}`, status, now)
	}
	return json.RawMessage(payload), nil
}

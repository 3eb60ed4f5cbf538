package carrier

import (
	"context"
	"encoding/json"
)

// Client отдаёт ответ трекинга "как есть": форма JSON у перевозчиков
// нестабильна, разбором занимается status.Extract.
type Client interface {
	FetchTrackingStatus(ctx context.Context, shipmentRef string) (json.RawMessage, error)
}

package status

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtract_NestedShipmentTrack(t *testing.T) {
	raw := json.RawMessage(`{
		"tracking_data": {
			"shipment_track": [
				{
					"current_status": "Out For Delivery",
					"current_status_location": "Mumbai Hub",
					"current_status_time": "2024-05-01 09:30:00",
					"current_status_type": "UD"
				}
			]
		}
	}`)

	ext, ok := Extract(raw)
	require.True(t, ok)
	require.Equal(t, "Out For Delivery", ext.RawStatus)
	require.Equal(t, "tracking_data.shipment_track[0].current_status", ext.MatchedPath)
	require.Equal(t, "Mumbai Hub", ext.Location)
	require.Equal(t, "2024-05-01 09:30:00", ext.OccurredAt)
	require.Equal(t, "UD", ext.StatusType)
}

func TestExtract_ShipmentRootStatus(t *testing.T) {
	raw := json.RawMessage(`{"tracking_data": {"current_status": "IN TRANSIT"}}`)

	ext, ok := Extract(raw)
	require.True(t, ok)
	require.Equal(t, "IN TRANSIT", ext.RawStatus)
	require.Equal(t, "tracking_data.current_status", ext.MatchedPath)
}

func TestExtract_LegacyLowercaseRootField(t *testing.T) {
	raw := json.RawMessage(`{"status": "delivered", "location": "Pune"}`)

	ext, ok := Extract(raw)
	require.True(t, ok)
	require.Equal(t, "delivered", ext.RawStatus)
	require.Equal(t, "status", ext.MatchedPath)
	require.Equal(t, "Pune", ext.Location)
}

// При конфликте значений в двух местах побеждает более приоритетное,
// но оба кандидата остаются в результате.
func TestExtract_ConflictingCandidates(t *testing.T) {
	raw := json.RawMessage(`{
		"status": "in transit",
		"tracking_data": {
			"shipment_track": [{"current_status": "DELIVERED"}]
		}
	}`)

	ext, ok := Extract(raw)
	require.True(t, ok)
	require.Equal(t, "DELIVERED", ext.RawStatus)
	require.Equal(t, "tracking_data.shipment_track[0].current_status", ext.MatchedPath)
	require.Len(t, ext.Candidates, 2)
	require.Equal(t, "DELIVERED", ext.Candidates[0].Value)
	require.Equal(t, "status", ext.Candidates[1].Path)
	require.Equal(t, "in transit", ext.Candidates[1].Value)
}

func TestExtract_NotFound(t *testing.T) {
	for _, raw := range []string{
		`{}`,
		`{"tracking_data": {}}`,
		`{"tracking_data": {"shipment_track": []}}`,
		`{"status": "   "}`,
		`{"status": 42}`,
		`not json at all`,
	} {
		_, ok := Extract(json.RawMessage(raw))
		require.False(t, ok, "payload: %s", raw)
	}
}

func TestExtract_EmptyNestedFallsThrough(t *testing.T) {
	raw := json.RawMessage(`{
		"tracking_data": {"shipment_track": [{"current_status": ""}]},
		"current_status": "PICKED UP"
	}`)

	ext, ok := Extract(raw)
	require.True(t, ok)
	require.Equal(t, "PICKED UP", ext.RawStatus)
	require.Equal(t, "current_status", ext.MatchedPath)
}

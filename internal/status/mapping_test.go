package status

import (
	"testing"

	"github.com/parcelbay/reconbox/internal/models"
	"github.com/stretchr/testify/require"
)

func TestMapShipment(t *testing.T) {
	require.Equal(t, models.ShipmentStatusDelivered, MapShipment("DELIVERED"))
	require.Equal(t, models.ShipmentStatusDelivered, MapShipment("  delivered "))
	require.Equal(t, models.ShipmentStatusInTransit, MapShipment("In Transit"))
	require.Equal(t, models.ShipmentStatusOutForDelivery, MapShipment("OUT FOR DELIVERY"))
	require.Equal(t, models.ShipmentStatusNDR, MapShipment("UNDELIVERED"))
	require.Equal(t, models.ShipmentStatusRTO, MapShipment("RTO INITIATED"))
	require.Equal(t, models.ShipmentStatusPickupPending, MapShipment("OUT FOR PICKUP"))
}

func TestMapShipment_UnknownStaysUnknown(t *testing.T) {
	require.Equal(t, models.ShipmentStatusUnknown, MapShipment("WAREHOUSE PARTY"))
	require.Equal(t, models.ShipmentStatusUnknown, MapShipment(""))
	// Точное совпадение, без сабстрок: "DELIVERED TO NEIGHBOUR" — не DELIVERED.
	require.Equal(t, models.ShipmentStatusUnknown, MapShipment("DELIVERED TO NEIGHBOUR"))
}

func TestMapPayment(t *testing.T) {
	require.Equal(t, models.PaymentStatusCompleted, MapPayment("CHARGED"))
	require.Equal(t, models.PaymentStatusPending, MapPayment("PENDING_VBV"))
	require.Equal(t, models.PaymentStatusFailed, MapPayment("JUSPAY_DECLINED"))
	// AUTO_REFUNDED — это failed, а не какая-то общая "refund"-корзина.
	require.Equal(t, models.PaymentStatusFailed, MapPayment("AUTO_REFUNDED"))
	require.Equal(t, models.PaymentStatusUnknown, MapPayment("REFUND"))
	require.Equal(t, models.PaymentStatusUnknown, MapPayment("COD_COLLECTED"))
}

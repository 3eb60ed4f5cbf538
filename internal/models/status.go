package models

// Канонические статусы отправлений (фиксированный словарь).
const (
	ShipmentStatusUnknown        = "UNKNOWN"
	ShipmentStatusPickupPending  = "PICKUP_PENDING"
	ShipmentStatusInTransit      = "IN_TRANSIT"
	ShipmentStatusOutForDelivery = "OUT_FOR_DELIVERY"
	ShipmentStatusDelivered      = "DELIVERED"
	ShipmentStatusNDR            = "NDR"
	ShipmentStatusRTO            = "RTO"
	ShipmentStatusCancelled      = "CANCELLED"
	ShipmentStatusLost           = "LOST"
)

// Канонические статусы платежей.
const (
	PaymentStatusUnknown   = "UNKNOWN"
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
)

// ShipmentStatusTerminal: DELIVERED — терминальный статус, дальше трек не двигается.
func ShipmentStatusTerminal(status string) bool {
	return status == ShipmentStatusDelivered
}

// PaymentStatusTerminal: COMPLETED/FAILED — повторная обработка запрещена.
func PaymentStatusTerminal(status string) bool {
	return status == PaymentStatusCompleted || status == PaymentStatusFailed
}

// Package messages описывает события reconbox для downstream-потребителей
// (уведомления, аналитика). Доставка уведомлений живёт вне этого сервиса.
package messages

import "time"

type ShipmentStatusChanged struct {
	ShipmentRef string `json:"shipment_ref"`
	OrderRef    string `json:"order_ref"`
	Status      string `json:"status"`
	StatusRaw   string `json:"status_raw"`
	Location    string `json:"location,omitempty"`
	// OccurredAt — отметка перевозчика как есть, без нормализации формата.
	OccurredAt string    `json:"occurred_at,omitempty"`
	Delivered  bool      `json:"delivered"`
	SyncedAt   time.Time `json:"synced_at"`
}

type TransactionSettled struct {
	TransactionID  string    `json:"transaction_id"`
	Status         string    `json:"status"`
	Amount         string    `json:"amount"`
	ClosingBalance string    `json:"closing_balance,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	SettledAt      time.Time `json:"settled_at"`
}

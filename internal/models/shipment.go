package models

import "time"

type Shipment struct {
	ID           uint64
	ShipmentRef  string // AWB перевозчика
	OrderRef     string
	Status       string
	StatusRaw    string
	LastSyncedAt *time.Time
	Delivered    bool
	DeliveredAt  *time.Time
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ShipmentEvent struct {
	ID         uint64
	ShipmentID uint64
	Status     string
	StatusRaw  string
	Location   string
	OccurredAt time.Time
	RecordedAt time.Time
}

type ShipmentCreateInput struct {
	ShipmentRef string
	OrderRef    string
}

// OrderProjection — зеркало статуса отправления на стороне заказа.
// Обновляется только вместе с Shipment, в той же транзакции.
type OrderProjection struct {
	OrderRef       string
	ShipmentStatus string
	DeliveredAt    *time.Time
	CancelledAt    *time.Time
	UpdatedAt      time.Time
}

// ExtractedStatus — результат разбора ответа перевозчика за один проход.
// Никуда не персистится, только сворачивается в историю.
type ExtractedStatus struct {
	RawStatus  string
	StatusType string
	Location   string
	// OccurredAt — строка времени как её прислал перевозчик.
	// Форматы гуляют, парсинг — забота применяющей стороны.
	OccurredAt string
	// MatchedPath — какая стратегия дала статус (для диагностики).
	MatchedPath string
	// Candidates — все найденные кандидаты, включая победителя.
	Candidates []StatusCandidate
}

type StatusCandidate struct {
	Path  string
	Value string
}

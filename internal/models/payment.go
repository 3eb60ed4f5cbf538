package models

import (
	"time"

	"github.com/govalues/decimal"
)

type Transaction struct {
	ID              uint64
	TransactionID   string
	GatewayOrderRef string
	UserID          uint64
	Amount          decimal.Decimal
	Status          string
	// PaymentStatusRaw — последний сырой статус шлюза, как есть.
	PaymentStatusRaw string
	PaymentMethod    string
	BankRefNo        string
	ErrorMessage     *string
	OpeningBalance   *decimal.Decimal
	ClosingBalance   *decimal.Decimal
	CreatedAt        time.Time
	SettledAt        *time.Time
}

type TransactionCreateInput struct {
	TransactionID   string
	GatewayOrderRef string
	UserID          uint64
	Amount          decimal.Decimal
}

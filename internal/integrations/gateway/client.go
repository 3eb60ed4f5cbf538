package gateway

import "context"

// OrderStatus — ответ шлюза по заказу. Status — сырая строка из известного
// словаря шлюза, нормализацией занимается status.MapPayment.
type OrderStatus struct {
	Status        string `json:"status"`
	TxnID         string `json:"txn_id"`
	BankRefNo     string `json:"bank_ref_no"`
	PaymentMethod string `json:"payment_method"`
	ErrorCode     string `json:"error_code"`
	ErrorMessage  string `json:"error_message"`
}

type Client interface {
	FetchPaymentStatus(ctx context.Context, gatewayOrderRef string) (OrderStatus, error)
}

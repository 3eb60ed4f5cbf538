package fake

import (
	"context"
	"hash/fnv"

	"github.com/parcelbay/reconbox/internal/integrations/gateway"
)

// FakeClient — заглушка шлюза: детерминированный статус по gatewayOrderRef.
type FakeClient struct{}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) FetchPaymentStatus(ctx context.Context, gatewayOrderRef string) (gateway.OrderStatus, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(gatewayOrderRef))
	v := h.Sum32()

	switch v % 4 {
	case 0:
		return gateway.OrderStatus{Status: "PENDING", TxnID: "txn-" + gatewayOrderRef}, nil
	case 1:
		return gateway.OrderStatus{
			Status:       "AUTO_REFUNDED",
			TxnID:        "txn-" + gatewayOrderRef,
			ErrorCode:    "AR",
			ErrorMessage: "auto refunded by gateway",
		}, nil
	default:
		return gateway.OrderStatus{
			Status:        "CHARGED",
			TxnID:         "txn-" + gatewayOrderRef,
			BankRefNo:     "bank-" + gatewayOrderRef,
			PaymentMethod: "UPI",
		}, nil
	}
}

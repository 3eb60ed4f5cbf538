package status

import (
	"strings"

	"github.com/parcelbay/reconbox/internal/models"
)

// Таблицы — единственный источник истины для нормализации. Только точное
// совпадение: сабстроки запрещены, иначе "AUTO_REFUNDED" уедет не в ту корзину.

var shipmentTable = map[string]string{
	"PICKUP SCHEDULED":           models.ShipmentStatusPickupPending,
	"PICKUP GENERATED":           models.ShipmentStatusPickupPending,
	"OUT FOR PICKUP":             models.ShipmentStatusPickupPending,
	"PICKUP RESCHEDULED":         models.ShipmentStatusPickupPending,
	"MANIFESTED":                 models.ShipmentStatusPickupPending,
	"PICKED UP":                  models.ShipmentStatusInTransit,
	"PICKUP DONE":                models.ShipmentStatusInTransit,
	"SHIPPED":                    models.ShipmentStatusInTransit,
	"IN TRANSIT":                 models.ShipmentStatusInTransit,
	"IN-TRANSIT":                 models.ShipmentStatusInTransit,
	"REACHED AT DESTINATION HUB": models.ShipmentStatusInTransit,
	"OUT FOR DELIVERY":           models.ShipmentStatusOutForDelivery,
	"DELIVERED":                  models.ShipmentStatusDelivered,
	"UNDELIVERED":                models.ShipmentStatusNDR,
	"NDR":                        models.ShipmentStatusNDR,
	"CUSTOMER NOT AVAILABLE":     models.ShipmentStatusNDR,
	"DELIVERY ATTEMPT FAILED":    models.ShipmentStatusNDR,
	"RTO INITIATED":              models.ShipmentStatusRTO,
	"RTO IN TRANSIT":             models.ShipmentStatusRTO,
	"RTO DELIVERED":              models.ShipmentStatusRTO,
	"CANCELLED":                  models.ShipmentStatusCancelled,
	"CANCELED":                   models.ShipmentStatusCancelled,
	"LOST":                       models.ShipmentStatusLost,
}

var paymentTable = map[string]string{
	"CHARGED":               models.PaymentStatusCompleted,
	"SUCCESS":               models.PaymentStatusCompleted,
	"NEW":                   models.PaymentStatusPending,
	"STARTED":               models.PaymentStatusPending,
	"PENDING":               models.PaymentStatusPending,
	"PENDING_VBV":           models.PaymentStatusPending,
	"AUTHORIZING":           models.PaymentStatusPending,
	"FAILED":                models.PaymentStatusFailed,
	"FAILURE":               models.PaymentStatusFailed,
	"AUTHENTICATION_FAILED": models.PaymentStatusFailed,
	"AUTHORIZATION_FAILED":  models.PaymentStatusFailed,
	"JUSPAY_DECLINED":       models.PaymentStatusFailed,
	"AUTO_REFUNDED":         models.PaymentStatusFailed,
}

// MapShipment нормализует сырой статус перевозчика. Незнакомая строка даёт
// UNKNOWN — решение о fallback принимает вызывающая сторона, не таблица.
func MapShipment(raw string) string {
	if canon, ok := shipmentTable[normalize(raw)]; ok {
		return canon
	}
	return models.ShipmentStatusUnknown
}

// MapPayment нормализует сырой статус платёжного шлюза.
func MapPayment(raw string) string {
	if canon, ok := paymentTable[normalize(raw)]; ok {
		return canon
	}
	return models.PaymentStatusUnknown
}

func normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

package gateway

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/angelmondragon/settlement-core/pkg/enums"
)

// Notification is the payment status payload, both pushed to the callback
// endpoint and returned by the status API.
type Notification struct {
	OrderID           string `json:"order_id" validate:"required"`
	StatusCode        string `json:"status_code" validate:"required"`
	GrossAmount       string `json:"gross_amount" validate:"required"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
	TransactionStatus string `json:"transaction_status" validate:"required"`
	TransactionID     string `json:"transaction_id"`
	SignatureKey      string `json:"signature_key"`
}

const (
	statusCapture    = "capture"
	statusSettlement = "settlement"
	statusPending    = "pending"

	paymentTypeCreditCard = "credit_card"
	fraudChallenge        = "challenge"
)

// Signature computes the hex sha512 of order_id+status_code+gross_amount+serverKey.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// VerifySignature compares the payload signature in constant time.
func (n Notification) VerifySignature(serverKey string) bool {
	if serverKey == "" || n.SignatureKey == "" {
		return false
	}
	expected := Signature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	got := strings.ToLower(strings.TrimSpace(n.SignatureKey))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// MapStatus translates the gateway transaction status to the order payment
// status it implies.
func (n Notification) MapStatus() enums.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(n.TransactionStatus)) {
	case statusCapture:
		if strings.EqualFold(n.PaymentType, paymentTypeCreditCard) {
			if strings.EqualFold(n.FraudStatus, fraudChallenge) {
				return enums.PaymentStatusUnpaid
			}
			return enums.PaymentStatusPaid
		}
		return enums.PaymentStatusFailed
	case statusSettlement:
		return enums.PaymentStatusPaid
	case statusPending:
		return enums.PaymentStatusUnpaid
	default:
		return enums.PaymentStatusFailed
	}
}

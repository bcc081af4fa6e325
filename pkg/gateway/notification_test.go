package gateway

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/settlement-core/pkg/enums"
)

func signed(n Notification, key string) Notification {
	n.SignatureKey = Signature(n.OrderID, n.StatusCode, n.GrossAmount, key)
	return n
}

func TestVerifySignature(t *testing.T) {
	base := Notification{OrderID: "BLUE12345", StatusCode: "200", GrossAmount: "37200.00", TransactionStatus: "settlement"}

	good := signed(base, "server-key")
	assert.True(t, good.VerifySignature("server-key"))
	assert.Len(t, good.SignatureKey, 128)

	upper := good
	upper.SignatureKey = strings.ToUpper(good.SignatureKey)
	assert.True(t, upper.VerifySignature("server-key"))

	assert.False(t, good.VerifySignature("other-key"))
	assert.False(t, good.VerifySignature(""))

	tampered := good
	tampered.GrossAmount = "1.00"
	assert.False(t, tampered.VerifySignature("server-key"))

	assert.False(t, base.VerifySignature("server-key"))
}

func TestMapStatus(t *testing.T) {
	cases := []struct {
		name   string
		n      Notification
		expect enums.PaymentStatus
	}{
		{"capture card challenge", Notification{TransactionStatus: "capture", PaymentType: "credit_card", FraudStatus: "challenge"}, enums.PaymentStatusUnpaid},
		{"capture card accept", Notification{TransactionStatus: "capture", PaymentType: "credit_card", FraudStatus: "accept"}, enums.PaymentStatusPaid},
		{"capture non card", Notification{TransactionStatus: "capture", PaymentType: "gopay"}, enums.PaymentStatusFailed},
		{"settlement", Notification{TransactionStatus: "settlement"}, enums.PaymentStatusPaid},
		{"pending", Notification{TransactionStatus: "pending"}, enums.PaymentStatusUnpaid},
		{"deny", Notification{TransactionStatus: "deny"}, enums.PaymentStatusFailed},
		{"expire", Notification{TransactionStatus: "expire"}, enums.PaymentStatusFailed},
		{"cancel", Notification{TransactionStatus: "cancel"}, enums.PaymentStatusFailed},
		{"unknown", Notification{TransactionStatus: "refund"}, enums.PaymentStatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, tc.n.MapStatus())
		})
	}
}

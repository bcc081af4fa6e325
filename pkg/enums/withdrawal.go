package enums

import (
	"fmt"
	"strings"
)

// WithdrawalStatus tracks manual approval of a payout request.
type WithdrawalStatus string

const (
	WithdrawalStatusPending  WithdrawalStatus = "pending"
	WithdrawalStatusApproved WithdrawalStatus = "approved"
)

// IsValid reports whether the value is a known WithdrawalStatus.
func (w WithdrawalStatus) IsValid() bool {
	return w == WithdrawalStatusPending || w == WithdrawalStatusApproved
}

// Bank enumerates the payout banks stores may withdraw to.
type Bank string

const (
	BankBCA     Bank = "bca"
	BankMandiri Bank = "mandiri"
	BankBNI     Bank = "bni"
	BankBRI     Bank = "bri"
)

var validBanks = []Bank{
	BankBCA,
	BankMandiri,
	BankBNI,
	BankBRI,
}

// IsValid reports whether the value is a supported payout bank.
func (b Bank) IsValid() bool {
	for _, candidate := range validBanks {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBank normalizes and validates a bank name.
func ParseBank(value string) (Bank, error) {
	normalized := Bank(strings.ToLower(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid bank %q", value)
}

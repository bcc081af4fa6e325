package enums

import "fmt"

// LedgerEntryType classifies a store balance history row.
type LedgerEntryType string

const (
	LedgerEntryIncome   LedgerEntryType = "income"
	LedgerEntryExpense  LedgerEntryType = "expense"
	LedgerEntryWithdraw LedgerEntryType = "withdraw"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryIncome,
	LedgerEntryExpense,
	LedgerEntryWithdraw,
}

// IsValid reports whether the value matches a known ledger entry type.
func (t LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerEntryType converts raw input into LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}

// LedgerReferenceType names the aggregate a ledger entry points back to.
type LedgerReferenceType string

const (
	LedgerReferenceOrder      LedgerReferenceType = "order"
	LedgerReferenceWithdrawal LedgerReferenceType = "withdrawal"
)

// IsValid reports whether the value matches a known reference type.
func (t LedgerReferenceType) IsValid() bool {
	return t == LedgerReferenceOrder || t == LedgerReferenceWithdrawal
}

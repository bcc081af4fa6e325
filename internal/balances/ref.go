package balances

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-core/pkg/enums"
)

// LedgerRef names the business record a ledger entry belongs to. It is
// closed to OrderRef and WithdrawalRef.
type LedgerRef interface {
	ledgerRef()
	encode() (enums.LedgerReferenceType, uuid.UUID)
}

type OrderRef struct {
	OrderID uuid.UUID `json:"order_id"`
}

type WithdrawalRef struct {
	WithdrawalID uuid.UUID `json:"withdrawal_id"`
}

func (OrderRef) ledgerRef()      {}
func (WithdrawalRef) ledgerRef() {}

func (r OrderRef) encode() (enums.LedgerReferenceType, uuid.UUID) {
	return enums.LedgerReferenceOrder, r.OrderID
}

func (r WithdrawalRef) encode() (enums.LedgerReferenceType, uuid.UUID) {
	return enums.LedgerReferenceWithdrawal, r.WithdrawalID
}

func ForOrder(id uuid.UUID) LedgerRef {
	return OrderRef{OrderID: id}
}

func ForWithdrawal(id uuid.UUID) LedgerRef {
	return WithdrawalRef{WithdrawalID: id}
}

// DecodeRef rebuilds the typed reference stored on a ledger row.
func DecodeRef(refType enums.LedgerReferenceType, id uuid.UUID) (LedgerRef, error) {
	switch refType {
	case enums.LedgerReferenceOrder:
		return OrderRef{OrderID: id}, nil
	case enums.LedgerReferenceWithdrawal:
		return WithdrawalRef{WithdrawalID: id}, nil
	default:
		return nil, fmt.Errorf("unknown ledger reference type %q", refType)
	}
}

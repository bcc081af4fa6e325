package balances

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-core/pkg/auth"
	"github.com/angelmondragon/settlement-core/pkg/db/models"
	"github.com/angelmondragon/settlement-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-core/pkg/errors"
	"github.com/angelmondragon/settlement-core/pkg/logger"
	"github.com/angelmondragon/settlement-core/pkg/types"
)

// Entry is one history row to append. Informational entries document an
// event without moving money and must carry a zero amount.
type Entry struct {
	StoreBalanceID uuid.UUID
	Type           enums.LedgerEntryType
	Amount         decimal.Decimal
	Ref            LedgerRef
	Remark         string
	Informational  bool
}

// Ledger is the write surface used by payments and withdrawals inside their
// own transactions.
type Ledger interface {
	Credit(ctx context.Context, tx *gorm.DB, storeBalanceID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	Debit(ctx context.Context, tx *gorm.DB, storeBalanceID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	Record(ctx context.Context, tx *gorm.DB, entry Entry) (*models.LedgerEntry, error)
	EnsureForStore(ctx context.Context, tx *gorm.DB, storeID uuid.UUID) (*models.StoreBalance, error)
}

// Reconciliation compares the stored balance with the sum of its history.
type Reconciliation struct {
	StoreBalanceID uuid.UUID       `json:"store_balance_id"`
	LedgerSum      decimal.Decimal `json:"ledger_sum"`
	Balance        decimal.Decimal `json:"balance"`
}

// Balanced reports whether the history explains the balance.
func (r Reconciliation) Balanced() bool {
	return r.LedgerSum.Equal(r.Balance)
}

// HistoryEntry is a ledger row with its reference decoded.
type HistoryEntry struct {
	models.LedgerEntry
	Reference LedgerRef `json:"reference"`
}

// HistoryPage is one page of ledger entries, newest first.
type HistoryPage struct {
	Entries []HistoryEntry `json:"entries"`
	Total   int64          `json:"total"`
	Page    types.Page     `json:"page"`
}

type Service struct {
	repo Repository
	logg *logger.Logger
}

var _ Ledger = (*Service)(nil)

func NewService(repo Repository, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("balance repository required")
	}
	return &Service{repo: repo, logg: logg}, nil
}

// Credit adds amount to the balance under a row lock and returns the new
// balance. It writes no history.
func (s *Service) Credit(ctx context.Context, tx *gorm.DB, storeBalanceID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.adjust(ctx, tx, storeBalanceID, amount, false)
}

// Debit subtracts amount under a row lock. The balance never goes negative.
func (s *Service) Debit(ctx context.Context, tx *gorm.DB, storeBalanceID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.adjust(ctx, tx, storeBalanceID, amount, true)
}

func (s *Service) adjust(ctx context.Context, tx *gorm.DB, storeBalanceID uuid.UUID, amount decimal.Decimal, debit bool) (decimal.Decimal, error) {
	if tx == nil {
		return decimal.Zero, errors.New("transaction required")
	}
	if !amount.IsPositive() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	repo := s.repo.WithTx(tx)
	balance, err := repo.LockByID(ctx, storeBalanceID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock store balance")
	}
	if balance == nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "store balance not found")
	}

	next := balance.Balance.Add(amount)
	if debit {
		if amount.GreaterThan(balance.Balance) {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "amount exceeds store balance").
				WithDetails(map[string]string{
					"requested": amount.StringFixed(2),
					"available": balance.Balance.StringFixed(2),
				})
		}
		next = balance.Balance.Sub(amount)
	}
	next = next.Round(2)
	if err := repo.UpdateBalance(ctx, storeBalanceID, next); err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update store balance")
	}
	return next, nil
}

// Record appends a history row. Income must be positive, expense and
// withdraw negative.
func (s *Service) Record(ctx context.Context, tx *gorm.DB, entry Entry) (*models.LedgerEntry, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if err := validateEntry(entry); err != nil {
		return nil, err
	}
	refType, refID := entry.Ref.encode()
	row := &models.LedgerEntry{
		StoreBalanceID:      entry.StoreBalanceID,
		Type:                entry.Type,
		Amount:              entry.Amount.Round(2),
		ReferenceType:       refType,
		ReferenceID:         refID,
		Remark:              entry.Remark,
		CountsTowardBalance: !entry.Informational,
	}
	if err := s.repo.WithTx(tx).InsertEntry(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert ledger entry")
	}
	return row, nil
}

func validateEntry(entry Entry) error {
	if entry.StoreBalanceID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "store balance id is required")
	}
	if entry.Ref == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "ledger reference is required")
	}
	if !entry.Type.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid ledger entry type %q", entry.Type)
	}
	if entry.Informational {
		if !entry.Amount.IsZero() {
			return pkgerrors.New(pkgerrors.CodeValidation, "informational entries carry no amount")
		}
		return nil
	}
	switch entry.Type {
	case enums.LedgerEntryIncome:
		if !entry.Amount.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "income amount must be positive")
		}
	case enums.LedgerEntryExpense, enums.LedgerEntryWithdraw:
		if !entry.Amount.IsNegative() {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "%s amount must be negative", entry.Type)
		}
	}
	return nil
}

// EnsureForStore returns the store's balance row, creating it at zero if the
// store has none yet.
func (s *Service) EnsureForStore(ctx context.Context, tx *gorm.DB, storeID uuid.UUID) (*models.StoreBalance, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	repo := s.repo.WithTx(tx)
	if err := repo.CreateIfMissing(ctx, storeID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "provision store balance")
	}
	balance, err := repo.FindByStoreID(ctx, storeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load store balance")
	}
	if balance == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "store balance missing after provisioning")
	}
	return balance, nil
}

// Get loads a balance by id without authorization; callers check ownership.
func (s *Service) Get(ctx context.Context, storeBalanceID uuid.UUID) (*models.StoreBalance, error) {
	balance, err := s.repo.FindByID(ctx, storeBalanceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load store balance")
	}
	if balance == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store balance not found")
	}
	return balance, nil
}

// GetForStore returns the balance of a store to its owner or an admin.
func (s *Service) GetForStore(ctx context.Context, authz auth.Authorization, storeID uuid.UUID) (*models.StoreBalance, error) {
	if err := canRead(authz, storeID); err != nil {
		return nil, err
	}
	balance, err := s.repo.FindByStoreID(ctx, storeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load store balance")
	}
	if balance == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store balance not found")
	}
	return balance, nil
}

// History pages through the ledger entries of a balance.
func (s *Service) History(ctx context.Context, authz auth.Authorization, storeBalanceID uuid.UUID, page types.Page) (*HistoryPage, error) {
	balance, err := s.Get(ctx, storeBalanceID)
	if err != nil {
		return nil, err
	}
	if err := canRead(authz, balance.StoreID); err != nil {
		return nil, err
	}
	page = page.Normalize()
	rows, total, err := s.repo.ListEntries(ctx, storeBalanceID, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list ledger entries")
	}
	entries := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		ref, err := DecodeRef(row.ReferenceType, row.ReferenceID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode ledger reference")
		}
		entries = append(entries, HistoryEntry{LedgerEntry: row, Reference: ref})
	}
	return &HistoryPage{Entries: entries, Total: total, Page: page}, nil
}

// ReconcileAs is Reconcile restricted to admins.
func (s *Service) ReconcileAs(ctx context.Context, authz auth.Authorization, storeBalanceID uuid.UUID) (Reconciliation, error) {
	if authz == nil {
		return Reconciliation{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !authz.IsRole(enums.RoleAdmin) {
		return Reconciliation{}, pkgerrors.New(pkgerrors.CodeForbidden, "only admins reconcile balances")
	}
	return s.Reconcile(ctx, storeBalanceID)
}

// Reconcile sums the counting ledger entries of a balance and returns them
// next to the stored balance.
func (s *Service) Reconcile(ctx context.Context, storeBalanceID uuid.UUID) (Reconciliation, error) {
	balance, err := s.Get(ctx, storeBalanceID)
	if err != nil {
		return Reconciliation{}, err
	}
	sum, err := s.repo.SumCountingEntries(ctx, storeBalanceID)
	if err != nil {
		return Reconciliation{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum ledger entries")
	}
	result := Reconciliation{StoreBalanceID: storeBalanceID, LedgerSum: sum, Balance: balance.Balance}
	if !result.Balanced() && s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"store_balance_id": storeBalanceID.String(),
			"ledger_sum":       sum.StringFixed(2),
			"balance":          balance.Balance.StringFixed(2),
		})
		s.logg.Warn(ctx, "store balance does not match ledger")
	}
	return result, nil
}

func canRead(authz auth.Authorization, storeID uuid.UUID) error {
	if authz == nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if authz.IsRole(enums.RoleAdmin) || authz.OwnsStore(storeID) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "store balance belongs to another store")
}

package withdrawals

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-core/internal/balances"
	"github.com/angelmondragon/settlement-core/pkg/auth"
	"github.com/angelmondragon/settlement-core/pkg/db/models"
	"github.com/angelmondragon/settlement-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-core/pkg/errors"
	"github.com/angelmondragon/settlement-core/pkg/logger"
	"github.com/angelmondragon/settlement-core/pkg/outbox"
	"github.com/angelmondragon/settlement-core/pkg/outbox/payloads"
	"github.com/angelmondragon/settlement-core/pkg/types"
)

// BankDetails is the payout destination of a withdrawal.
type BankDetails struct {
	BankName      string `json:"bank_name" validate:"required,oneof=bca mandiri bni bri"`
	AccountName   string `json:"bank_account_name" validate:"required,max=120"`
	AccountNumber string `json:"bank_account_number" validate:"required,numeric,min=6,max=32"`
}

// List is one page of withdrawals, newest first.
type List struct {
	Items []models.Withdrawal `json:"items"`
	Total int64               `json:"total"`
	Page  types.Page          `json:"page"`
}

type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Balances BalanceLedger
	Outbox   outbox.Emitter
	Minimum  decimal.Decimal
	Logger   *logger.Logger
}

type Service struct {
	repo     Repository
	tx       txRunner
	balances BalanceLedger
	outbox   outbox.Emitter
	minimum  decimal.Decimal
	validate *validator.Validate
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("withdrawal repository required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Balances == nil {
		return nil, errors.New("balance ledger required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	if !params.Minimum.IsPositive() {
		return nil, errors.New("minimum withdrawal must be positive")
	}
	return &Service{
		repo:     params.Repo,
		tx:       params.Tx,
		balances: params.Balances,
		outbox:   params.Outbox,
		minimum:  params.Minimum,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logg:     params.Logger,
	}, nil
}

// Request debits the balance immediately and records a pending payout for
// an admin to approve.
func (s *Service) Request(ctx context.Context, authz auth.Authorization, storeBalanceID uuid.UUID, amount decimal.Decimal, bank BankDetails) (*models.Withdrawal, error) {
	if authz == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	balance, err := s.balances.Get(ctx, storeBalanceID)
	if err != nil {
		return nil, err
	}
	if !authz.OwnsStore(balance.StoreID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "store balance belongs to another store")
	}

	amount = amount.Round(2)
	if amount.LessThan(s.minimum) {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "minimum withdrawal is %s", s.minimum.StringFixed(2)).
			WithDetails(map[string]string{"amount": "must be at least " + s.minimum.StringFixed(2)})
	}
	bank.BankName = strings.ToLower(strings.TrimSpace(bank.BankName))
	bank.AccountName = strings.TrimSpace(bank.AccountName)
	bank.AccountNumber = strings.TrimSpace(bank.AccountNumber)
	if err := s.validate.Struct(bank); err != nil {
		return nil, bankError(err)
	}
	bankName, err := enums.ParseBank(bank.BankName)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported bank")
	}
	if amount.GreaterThan(balance.Balance) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "amount exceeds store balance").
			WithDetails(map[string]string{
				"requested": amount.StringFixed(2),
				"available": balance.Balance.StringFixed(2),
			})
	}

	w := &models.Withdrawal{
		ID:                uuid.New(),
		StoreBalanceID:    storeBalanceID,
		Amount:            amount,
		BankName:          bankName,
		BankAccountName:   bank.AccountName,
		BankAccountNumber: bank.AccountNumber,
		Status:            enums.WithdrawalStatusPending,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.balances.Debit(ctx, tx, storeBalanceID, amount); err != nil {
			return err
		}
		if _, err := s.balances.Record(ctx, tx, balances.Entry{
			StoreBalanceID: storeBalanceID,
			Type:           enums.LedgerEntryWithdraw,
			Amount:         amount.Neg(),
			Ref:            balances.ForWithdrawal(w.ID),
			Remark:         "Withdrawal request of " + amount.StringFixed(2),
		}); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Create(ctx, w); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create withdrawal")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWithdrawalRequested,
			AggregateType: enums.AggregateWithdrawal,
			AggregateID:   w.ID,
			Actor:         outbox.ActorFrom(authz),
			Data: payloads.WithdrawalRequestedEvent{
				WithdrawalID:   w.ID,
				StoreBalanceID: storeBalanceID,
				Amount:         amount,
				BankName:       bankName,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"withdrawal_id":    w.ID.String(),
			"store_balance_id": storeBalanceID.String(),
			"amount":           amount.StringFixed(2),
		})
		s.logg.Info(logCtx, "withdrawal requested")
	}
	return w, nil
}

// Approve records the transfer proof on a pending withdrawal. The money
// already left the balance at request time, so only an informational
// ledger entry is written.
func (s *Service) Approve(ctx context.Context, authz auth.Authorization, withdrawalID uuid.UUID, proof string) (*models.Withdrawal, error) {
	if authz == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !authz.IsRole(enums.RoleAdmin) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins approve withdrawals")
	}
	proof = strings.TrimSpace(proof)
	if proof == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer proof is required")
	}

	var approved *models.Withdrawal
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		w, err := repo.LockByID(ctx, withdrawalID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock withdrawal")
		}
		if w == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found")
		}
		if w.Status != enums.WithdrawalStatusPending {
			return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "withdrawal is already %s", w.Status)
		}

		if err := repo.Update(ctx, w.ID, map[string]any{
			"status": enums.WithdrawalStatusApproved,
			"proof":  proof,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "approve withdrawal")
		}
		w.Status = enums.WithdrawalStatusApproved
		w.Proof = &proof

		if _, err := s.balances.Record(ctx, tx, balances.Entry{
			StoreBalanceID: w.StoreBalanceID,
			Type:           enums.LedgerEntryWithdraw,
			Amount:         decimal.Zero,
			Ref:            balances.ForWithdrawal(w.ID),
			Remark:         fmt.Sprintf("Withdrawal approved: %s", w.Amount.StringFixed(2)),
			Informational:  true,
		}); err != nil {
			return err
		}
		approved = w
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWithdrawalApproved,
			AggregateType: enums.AggregateWithdrawal,
			AggregateID:   w.ID,
			Actor:         outbox.ActorFrom(authz),
			Data: payloads.WithdrawalApprovedEvent{
				WithdrawalID:   w.ID,
				StoreBalanceID: w.StoreBalanceID,
				Amount:         w.Amount,
				ApprovedBy:     authz.ActorID(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "withdrawal_id", withdrawalID.String()), "withdrawal approved")
	}
	return approved, nil
}

// List pages through a balance's withdrawals for its owner or an admin.
func (s *Service) List(ctx context.Context, authz auth.Authorization, storeBalanceID uuid.UUID, page types.Page) (*List, error) {
	if authz == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	balance, err := s.balances.Get(ctx, storeBalanceID)
	if err != nil {
		return nil, err
	}
	if !authz.OwnsStore(balance.StoreID) && !authz.IsRole(enums.RoleAdmin) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "store balance belongs to another store")
	}
	page = page.Normalize()
	items, total, err := s.repo.ListByBalance(ctx, storeBalanceID, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list withdrawals")
	}
	return &List{Items: items, Total: total, Page: page}, nil
}

func bankError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid bank details")
	}
	details := map[string]string{}
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid bank details").WithDetails(details)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "coopledger/internal/errors"
	"coopledger/internal/logger"
	"coopledger/internal/models"
	"coopledger/internal/ogm"
	"coopledger/internal/pagination"
	"coopledger/internal/repository"
)

// ledgerService coordinates Share, Transaction and Payment changes. Every
// mutating method runs in a single unit of work.
type ledgerService struct {
	uow repository.UnitOfWork
	now func() time.Time
}

// ServiceOption configures a service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	now func() time.Time
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(o *serviceOptions) { o.now = now }
}

func buildOptions(opts []ServiceOption) serviceOptions {
	o := serviceOptions{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewLedgerService creates a new LedgerServicer.
func NewLedgerService(uow repository.UnitOfWork, opts ...ServiceOption) LedgerServicer {
	o := buildOptions(opts)
	return &ledgerService{uow: uow, now: o.now}
}

// InitiatePurchase creates a PENDING share, its PURCHASE transaction and the
// payment the shareholder has to make, all or nothing.
func (s *ledgerService) InitiatePurchase(ctx context.Context, in PurchaseInput) (*PurchaseResult, error) {
	if in.Quantity < 1 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Quantity must be at least 1")
	}
	purchaseDate := in.PurchaseDate
	if purchaseDate.IsZero() {
		purchaseDate = s.now()
	}

	var result *PurchaseResult
	err := s.uow.WithinTx(ctx, func(store repository.Store) error {
		coop, err := store.Coops().GetByID(ctx, in.CoopID)
		if err != nil {
			return err
		}
		if _, err := activeShareholder(ctx, store, in.CoopID, in.ShareholderID); err != nil {
			return err
		}

		class, err := store.ShareClasses().GetByID(ctx, in.CoopID, in.ShareClassID)
		if err != nil {
			return err
		}
		if !class.IsActive {
			return apperrors.NotFound(apperrors.ErrShareClassNotFound, "share class", class.ID)
		}
		if in.ProjectID != nil && *in.ProjectID != "" {
			project, err := store.Projects().GetByID(ctx, in.CoopID, *in.ProjectID)
			if err != nil {
				return err
			}
			if !project.IsActive {
				return apperrors.NotFound(apperrors.ErrProjectNotFound, "project", project.ID)
			}
		} else {
			in.ProjectID = nil
		}

		if class.MinShares > 0 && in.Quantity < class.MinShares {
			return apperrors.WithMessage(apperrors.ErrInvalidInput,
				fmt.Sprintf("Share class %s requires at least %d shares", class.Code, class.MinShares))
		}
		if class.MaxShares > 0 && in.Quantity > class.MaxShares {
			return apperrors.WithMessage(apperrors.ErrInvalidInput,
				fmt.Sprintf("Share class %s allows at most %d shares", class.Code, class.MaxShares))
		}

		price := class.PricePerShare
		total := price.Mul(decimal.NewFromInt(int64(in.Quantity)))

		share := &models.Share{
			CoopID:                in.CoopID,
			ShareholderID:         in.ShareholderID,
			ShareClassID:          class.ID,
			ProjectID:             in.ProjectID,
			Quantity:              in.Quantity,
			PurchasePricePerShare: price,
			PurchaseDate:          models.DateOnly(purchaseDate),
			Status:                models.ShareStatusPending,
		}
		if err := store.Shares().Create(ctx, share); err != nil {
			return err
		}

		txn := &models.Transaction{
			CoopID:        in.CoopID,
			Type:          models.TransactionTypePurchase,
			Status:        models.TransactionStatusPending,
			ShareID:       share.ID,
			ShareholderID: in.ShareholderID,
			Quantity:      in.Quantity,
			PricePerShare: price,
			TotalAmount:   total,
		}
		if err := store.Transactions().Create(ctx, txn); err != nil {
			return err
		}

		payment, err := issuePayment(ctx, store, coop, txn.ID, total)
		if err != nil {
			return err
		}

		share.ShareClass = class
		txn.Payment = payment
		result = &PurchaseResult{Share: share, Transaction: txn, Payment: payment}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Get().Infow("purchase initiated",
		"transaction_id", result.Transaction.ID,
		"share_id", result.Share.ID,
		"quantity", in.Quantity,
		"ogm", result.Payment.OGMCode,
	)
	return result, nil
}

// InitiateSale records a PENDING sale of part or all of an ACTIVE share.
func (s *ledgerService) InitiateSale(ctx context.Context, in SaleInput) (*models.Transaction, error) {
	if in.Quantity < 1 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Quantity must be at least 1")
	}

	var txn *models.Transaction
	err := s.uow.WithinTx(ctx, func(store repository.Store) error {
		if _, err := store.Shareholders().GetByID(ctx, in.CoopID, in.ShareholderID); err != nil {
			return err
		}
		share, err := claimShare(ctx, store, in.CoopID, in.ShareID, in.ShareholderID)
		if err != nil {
			return err
		}
		if err := checkAvailable(ctx, store, share, in.Quantity); err != nil {
			return err
		}

		price := share.PurchasePricePerShare
		txn = &models.Transaction{
			CoopID:        in.CoopID,
			Type:          models.TransactionTypeSale,
			Status:        models.TransactionStatusPending,
			ShareID:       share.ID,
			ShareholderID: in.ShareholderID,
			Quantity:      in.Quantity,
			PricePerShare: price,
			TotalAmount:   price.Mul(decimal.NewFromInt(int64(in.Quantity))),
		}
		return store.Transactions().Create(ctx, txn)
	})
	if err != nil {
		return nil, err
	}

	logger.Get().Infow("sale initiated",
		"transaction_id", txn.ID, "share_id", in.ShareID, "quantity", in.Quantity)
	return txn, nil
}

// Approve moves a PENDING transaction to APPROVED.
func (s *ledgerService) Approve(ctx context.Context, coopID, transactionID, approver string) (*models.Transaction, error) {
	return s.transition(ctx, coopID, transactionID, func(store repository.Store, txn *models.Transaction) error {
		return approveTransaction(ctx, store, txn, approver, s.now())
	})
}

// Reject moves a PENDING transaction to REJECTED. Its payment, if still
// PENDING, fails so it can never be matched.
func (s *ledgerService) Reject(ctx context.Context, coopID, transactionID, approver, reason string) (*models.Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "A rejection reason is required")
	}

	return s.transition(ctx, coopID, transactionID, func(store repository.Store, txn *models.Transaction) error {
		at := s.now()
		ok, err := store.Transactions().TransitionStatus(ctx, txn.ID,
			models.TransactionStatusPending, models.TransactionStatusRejected,
			repository.TransactionUpdate{ProcessedBy: approver, ProcessedAt: at, RejectionReason: reason})
		if err != nil {
			return err
		}
		if !ok {
			return transactionTransitionError(ctx, store, txn, models.TransactionStatusRejected)
		}

		if txn.Payment != nil {
			if _, err := store.Payments().TransitionStatus(ctx, txn.Payment.ID,
				[]models.PaymentStatus{models.PaymentStatusPending}, models.PaymentStatusFailed, at); err != nil {
				return err
			}
		}

		logger.Get().Infow("transaction rejected",
			"transaction_id", txn.ID, "approver", approver, "reason", reason)
		return nil
	})
}

// Complete moves an APPROVED transaction to COMPLETED and confirms its payment.
func (s *ledgerService) Complete(ctx context.Context, coopID, transactionID, approver string) (*models.Transaction, error) {
	return s.transition(ctx, coopID, transactionID, func(store repository.Store, txn *models.Transaction) error {
		return completeTransaction(ctx, store, txn, approver, s.now())
	})
}

func (s *ledgerService) transition(ctx context.Context, coopID, transactionID string, fn func(repository.Store, *models.Transaction) error) (*models.Transaction, error) {
	var out *models.Transaction
	err := s.uow.WithinTx(ctx, func(store repository.Store) error {
		txn, err := store.Transactions().GetByID(ctx, coopID, transactionID)
		if err != nil {
			return err
		}
		if err := fn(store, txn); err != nil {
			return err
		}
		out, err = store.Transactions().GetByID(ctx, coopID, transactionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExecuteTransfer moves quantity shares from one shareholder to another in a
// single step. Both legs are created COMPLETED.
func (s *ledgerService) ExecuteTransfer(ctx context.Context, in TransferInput) (*TransferResult, error) {
	if in.Quantity < 1 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Quantity must be at least 1")
	}
	if in.FromShareholderID == in.ToShareholderID {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Cannot transfer shares to the same shareholder")
	}

	var result *TransferResult
	err := s.uow.WithinTx(ctx, func(store repository.Store) error {
		share, err := claimShare(ctx, store, in.CoopID, in.ShareID, in.FromShareholderID)
		if err != nil {
			return err
		}
		if _, err := activeShareholder(ctx, store, in.CoopID, in.ToShareholderID); err != nil {
			return err
		}
		if err := checkAvailable(ctx, store, share, in.Quantity); err != nil {
			return err
		}

		at := in.TransferDate
		if at.IsZero() {
			at = s.now()
		}
		price := share.PurchasePricePerShare
		total := price.Mul(decimal.NewFromInt(int64(in.Quantity)))
		from, to := in.FromShareholderID, in.ToShareholderID
		actor := in.Actor

		out := &models.Transaction{
			CoopID:            in.CoopID,
			Type:              models.TransactionTypeTransferOut,
			Status:            models.TransactionStatusCompleted,
			ShareID:           share.ID,
			ShareholderID:     from,
			Quantity:          in.Quantity,
			PricePerShare:     price,
			TotalAmount:       total,
			ProcessedBy:       &actor,
			ProcessedAt:       &at,
			FromShareholderID: &from,
			ToShareholderID:   &to,
		}
		if err := store.Transactions().Create(ctx, out); err != nil {
			return err
		}

		newShare := &models.Share{
			CoopID:                in.CoopID,
			ShareholderID:         to,
			ShareClassID:          share.ShareClassID,
			ProjectID:             share.ProjectID,
			Quantity:              in.Quantity,
			PurchasePricePerShare: price,
			PurchaseDate:          share.PurchaseDate,
			Status:                models.ShareStatusActive,
		}
		if err := store.Shares().Create(ctx, newShare); err != nil {
			return err
		}

		inTxn := &models.Transaction{
			CoopID:            in.CoopID,
			Type:              models.TransactionTypeTransferIn,
			Status:            models.TransactionStatusCompleted,
			ShareID:           newShare.ID,
			ShareholderID:     to,
			Quantity:          in.Quantity,
			PricePerShare:     price,
			TotalAmount:       total,
			ProcessedBy:       &actor,
			ProcessedAt:       &at,
			FromShareholderID: &from,
			ToShareholderID:   &to,
		}
		if err := store.Transactions().Create(ctx, inTxn); err != nil {
			return err
		}

		var ok bool
		if in.Quantity == share.Quantity {
			ok, err = store.Shares().TransitionStatus(ctx, share.ID, models.ShareStatusActive, models.ShareStatusTransferred)
		} else {
			ok, err = store.Shares().DecrementQuantity(ctx, share.ID, in.Quantity)
		}
		if err != nil {
			return err
		}
		if !ok {
			return shareTransitionError(ctx, store, in.CoopID, share.ID, models.ShareStatusTransferred)
		}

		source, err := store.Shares().GetByID(ctx, in.CoopID, share.ID)
		if err != nil {
			return err
		}
		created, err := store.Shares().GetByID(ctx, in.CoopID, newShare.ID)
		if err != nil {
			return err
		}

		result = &TransferResult{Out: out, In: inTxn, SourceShare: source, NewShare: created}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Get().Infow("transfer executed",
		"share_id", in.ShareID,
		"from", in.FromShareholderID,
		"to", in.ToShareholderID,
		"quantity", in.Quantity,
	)
	return result, nil
}

// GetPaymentDetails returns transfer instructions for a purchase (shareholder
// pays the coop) or a sale (coop pays the shareholder).
func (s *ledgerService) GetPaymentDetails(ctx context.Context, coopID, transactionID string) (*PaymentDetails, error) {
	txn, err := s.uow.Transactions().GetByID(ctx, coopID, transactionID)
	if err != nil {
		return nil, err
	}

	switch txn.Type {
	case models.TransactionTypePurchase:
		if txn.Payment == nil {
			return nil, apperrors.NotFound(apperrors.ErrPaymentNotFound, "payment", txn.ID)
		}
		coop, err := s.uow.Coops().GetByID(ctx, coopID)
		if err != nil {
			return nil, err
		}
		return &PaymentDetails{
			Direction:       PaymentDirectionIncoming,
			BeneficiaryName: coop.Name,
			IBAN:            coop.IBAN,
			BIC:             coop.BIC,
			Amount:          txn.Payment.Amount,
			OGMCode:         txn.Payment.OGMCode,
		}, nil

	case models.TransactionTypeSale:
		sh, err := s.uow.Shareholders().GetByID(ctx, coopID, txn.ShareholderID)
		if err != nil {
			return nil, err
		}
		return &PaymentDetails{
			Direction:       PaymentDirectionOutgoing,
			BeneficiaryName: sh.DisplayName(),
			IBAN:            sh.IBAN,
			BIC:             sh.BIC,
			Amount:          txn.TotalAmount,
		}, nil
	}

	return nil, apperrors.WithDetails(
		apperrors.WithMessage(apperrors.ErrInvalidState, "Transfers have no payment"),
		"entity", "transaction", "id", txn.ID)
}

// GetTransaction retrieves a transaction with its payment.
func (s *ledgerService) GetTransaction(ctx context.Context, coopID, transactionID string) (*models.Transaction, error) {
	return s.uow.Transactions().GetByID(ctx, coopID, transactionID)
}

// ListTransactions retrieves a page of transactions, newest first.
func (s *ledgerService) ListTransactions(ctx context.Context, coopID string, filter repository.TransactionFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error) {
	page.Defaults()
	txns, total, err := s.uow.Transactions().List(ctx, coopID, filter, page)
	if err != nil {
		return nil, err
	}
	resp := pagination.NewPageResponse(txns, page.Page, page.PageSize, total)
	return &resp, nil
}

// GetPaymentByOGM looks a payment up by its structured reference, in either
// the formatted or the bare twelve-digit form.
func (s *ledgerService) GetPaymentByOGM(ctx context.Context, coopID, code string) (*models.Payment, error) {
	canonical, err := canonicalOGM(code)
	if err != nil {
		return nil, err
	}
	return s.uow.Payments().GetByOGM(ctx, coopID, canonical)
}

func canonicalOGM(code string) (string, error) {
	if err := ogm.Validate(code); err != nil {
		if errors.Is(err, ogm.ErrInvalidChecksum) {
			return "", apperrors.WithDetails(apperrors.ErrInvalidOGMChecksum, "ogm", code)
		}
		return "", apperrors.WithDetails(apperrors.ErrInvalidOGMFormat, "ogm", code)
	}
	canonical, _ := ogm.Format(code)
	return canonical, nil
}

func activeShareholder(ctx context.Context, store repository.Store, coopID, id string) (*models.Shareholder, error) {
	sh, err := store.Shareholders().GetByID(ctx, coopID, id)
	if err != nil {
		return nil, err
	}
	if !sh.IsActive {
		return nil, apperrors.NotFound(apperrors.ErrShareholderNotFound, "shareholder", id)
	}
	return sh, nil
}

// claimShare write-locks an ACTIVE share owned by ownerID. The write happens
// before any quantity is summed so concurrent commitments on one share queue
// behind each other.
func claimShare(ctx context.Context, store repository.Store, coopID, shareID, ownerID string) (*models.Share, error) {
	claimed, err := store.Shares().ClaimActive(ctx, coopID, shareID)
	if err != nil {
		return nil, err
	}
	share, err := store.Shares().GetByID(ctx, coopID, shareID)
	if err != nil {
		return nil, err
	}
	if share.ShareholderID != ownerID {
		return nil, apperrors.WithDetails(apperrors.ErrWrongOwner,
			"entity", "share", "id", share.ID, "shareholder_id", ownerID)
	}
	if !claimed {
		e := apperrors.WithDetails(apperrors.ErrInvalidState,
			"entity", "share", "id", share.ID, "status", string(share.Status))
		e.Message = fmt.Sprintf("share %s is %s, only ACTIVE shares can be sold or transferred", share.ID, share.Status)
		return nil, e
	}
	return share, nil
}

// checkAvailable rejects quantity if, together with PENDING and APPROVED
// sales, it exceeds what the share holds.
func checkAvailable(ctx context.Context, store repository.Store, share *models.Share, quantity int) error {
	inFlight, err := store.Transactions().SumSaleQuantity(ctx, share.ID,
		models.TransactionStatusPending, models.TransactionStatusApproved)
	if err != nil {
		return err
	}
	if inFlight+quantity > share.Quantity {
		return apperrors.WithDetails(apperrors.ErrOverCommitted,
			"entity", "share",
			"id", share.ID,
			"requested", strconv.Itoa(quantity),
			"available", strconv.Itoa(share.Quantity-inFlight),
		)
	}
	return nil
}

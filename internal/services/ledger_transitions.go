package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	apperrors "coopledger/internal/errors"
	"coopledger/internal/logger"
	"coopledger/internal/models"
	"coopledger/internal/ogm"
	"coopledger/internal/repository"

	"github.com/shopspring/decimal"
)

// SystemActor is recorded as processedBy when a transition is triggered by a
// bank import rather than a person.
const SystemActor = "system:bank-import"

// The helpers in this file run inside a unit of work and take the
// transactional Store. Every status change is a compare-and-set; a lost race
// surfaces as INVALID_STATE and rolls the caller back.

func approveTransaction(ctx context.Context, store repository.Store, txn *models.Transaction, approver string, at time.Time) error {
	ok, err := store.Transactions().TransitionStatus(ctx, txn.ID,
		models.TransactionStatusPending, models.TransactionStatusApproved,
		repository.TransactionUpdate{ProcessedBy: approver, ProcessedAt: at})
	if err != nil {
		return err
	}
	if !ok {
		return transactionTransitionError(ctx, store, txn, models.TransactionStatusApproved)
	}

	switch txn.Type {
	case models.TransactionTypePurchase:
		ok, err := store.Shares().TransitionStatus(ctx, txn.ShareID, models.ShareStatusPending, models.ShareStatusActive)
		if err != nil {
			return err
		}
		if !ok {
			return shareTransitionError(ctx, store, txn.CoopID, txn.ShareID, models.ShareStatusActive)
		}

	case models.TransactionTypeSale:
		approved, err := store.Transactions().SumSaleQuantity(ctx, txn.ShareID, models.TransactionStatusApproved)
		if err != nil {
			return err
		}
		share, err := store.Shares().GetByID(ctx, txn.CoopID, txn.ShareID)
		if err != nil {
			return err
		}
		if share.Status == models.ShareStatusActive && approved >= share.Quantity {
			ok, err := store.Shares().TransitionStatus(ctx, share.ID, models.ShareStatusActive, models.ShareStatusSold)
			if err != nil {
				return err
			}
			if !ok {
				return shareTransitionError(ctx, store, txn.CoopID, share.ID, models.ShareStatusSold)
			}
		}
	}

	logger.Get().Infow("transaction approved",
		"transaction_id", txn.ID, "type", txn.Type, "approver", approver)
	return nil
}

func completeTransaction(ctx context.Context, store repository.Store, txn *models.Transaction, approver string, at time.Time) error {
	ok, err := store.Transactions().TransitionStatus(ctx, txn.ID,
		models.TransactionStatusApproved, models.TransactionStatusCompleted,
		repository.TransactionUpdate{ProcessedBy: approver, ProcessedAt: at})
	if err != nil {
		return err
	}
	if !ok {
		return transactionTransitionError(ctx, store, txn, models.TransactionStatusCompleted)
	}

	payment, err := store.Payments().FindByTransactionID(ctx, txn.ID)
	if err != nil {
		return err
	}
	if payment != nil {
		ok, err := store.Payments().TransitionStatus(ctx, payment.ID,
			[]models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusMatched},
			models.PaymentStatusConfirmed, at)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.InvalidTransition("payment", payment.ID, string(payment.Status), string(models.PaymentStatusConfirmed))
		}
	}

	// A partial sale leaves the share ACTIVE at approval; the sold quantity
	// comes off the holding once the sale completes.
	if txn.Type == models.TransactionTypeSale {
		share, err := store.Shares().GetByID(ctx, txn.CoopID, txn.ShareID)
		if err != nil {
			return err
		}
		if share.Status == models.ShareStatusActive {
			ok, err := store.Shares().DecrementQuantity(ctx, share.ID, txn.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				if _, err := store.Shares().TransitionStatus(ctx, share.ID, models.ShareStatusActive, models.ShareStatusSold); err != nil {
					return err
				}
			}
		}
	}

	logger.Get().Infow("transaction completed",
		"transaction_id", txn.ID, "type", txn.Type, "approver", approver)
	return nil
}

// settleMatchedPayment claims a PENDING payment for an incoming bank transfer
// and advances its purchase. Both the automatic and the manual match path go
// through here. It returns false without error when the payment is no longer
// PENDING, meaning another run already claimed it.
func settleMatchedPayment(ctx context.Context, store repository.Store, payment *models.Payment, actor string, at time.Time) (bool, error) {
	ok, err := store.Payments().TransitionStatus(ctx, payment.ID,
		[]models.PaymentStatus{models.PaymentStatusPending}, models.PaymentStatusMatched, at)
	if err != nil || !ok {
		return false, err
	}

	txn, err := store.Transactions().GetByID(ctx, payment.CoopID, payment.TransactionID)
	if err != nil {
		return false, err
	}

	switch txn.Status {
	case models.TransactionStatusPending:
		// Money received for a purchase nobody has reviewed yet. A MATCHED
		// payment must never sit on a PENDING transaction, so approve first.
		if err := approveTransaction(ctx, store, txn, actor, at); err != nil {
			return false, err
		}
		txn.Status = models.TransactionStatusApproved
		fallthrough
	case models.TransactionStatusApproved:
		if err := completeTransaction(ctx, store, txn, actor, at); err != nil {
			return false, err
		}
	default:
		return false, apperrors.InvalidTransition("transaction", txn.ID, string(txn.Status), string(models.TransactionStatusCompleted))
	}

	logger.Get().Infow("payment matched",
		"payment_id", payment.ID, "ogm", payment.OGMCode, "transaction_id", txn.ID, "actor", actor)
	return true, nil
}

// issuePayment allocates the next OGM sequence for the coop and writes the
// payment. The coop row is written first so concurrent allocators queue on
// its lock; the unique indexes reject anything that still collides.
func issuePayment(ctx context.Context, store repository.Store, coop *models.Coop, transactionID string, amount decimal.Decimal) (*models.Payment, error) {
	if err := store.Coops().Touch(ctx, coop.ID); err != nil {
		return nil, err
	}

	last, err := store.Payments().MaxSequence(ctx, coop.ID)
	if err != nil {
		return nil, err
	}
	seq := last + 1

	code, err := ogm.Generate(coop.OGMPrefix, seq)
	if errors.Is(err, ogm.ErrSequenceOutOfRange) {
		return nil, apperrors.WithDetails(
			apperrors.WithMessage(apperrors.ErrConflict, "Payment reference sequence exhausted for this cooperative"),
			"entity", "coop", "id", coop.ID, "sequence", strconv.Itoa(seq))
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	payment := &models.Payment{
		CoopID:        coop.ID,
		TransactionID: transactionID,
		Method:        models.PaymentMethodBankTransfer,
		Status:        models.PaymentStatusPending,
		Amount:        amount,
		OGMCode:       code,
		OGMSequence:   seq,
	}
	if err := store.Payments().Create(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// transactionTransitionError reports a lost compare-and-set with the status
// the transaction actually has now.
func transactionTransitionError(ctx context.Context, store repository.Store, txn *models.Transaction, to models.TransactionStatus) error {
	from := string(txn.Status)
	if current, err := store.Transactions().GetByID(ctx, txn.CoopID, txn.ID); err == nil {
		from = string(current.Status)
	}
	return apperrors.InvalidTransition("transaction", txn.ID, from, string(to))
}

func shareTransitionError(ctx context.Context, store repository.Store, coopID, shareID string, to models.ShareStatus) error {
	from := "unknown"
	if current, err := store.Shares().GetByID(ctx, coopID, shareID); err == nil {
		from = string(current.Status)
	}
	return apperrors.InvalidTransition("share", shareID, from, string(to))
}

package repository

import (
	"context"
	"errors"
	"time"

	apperrors "coopledger/internal/errors"
	"coopledger/internal/models"

	"gorm.io/gorm"
)

type paymentRepository struct {
	db *gorm.DB
}

func (r *paymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	return duplicate(r.db.WithContext(ctx).Create(payment).Error, apperrors.ErrDuplicateOGM)
}

func (r *paymentRepository) GetByID(ctx context.Context, coopID, id string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Where("id = ? AND coop_id = ?", id, coopID).First(&p).Error; err != nil {
		return nil, notFound(err, apperrors.ErrPaymentNotFound, "payment", id)
	}
	return &p, nil
}

func (r *paymentRepository) GetByOGM(ctx context.Context, coopID, code string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Where("ogm_code = ? AND coop_id = ?", code, coopID).First(&p).Error; err != nil {
		return nil, notFound(err, apperrors.ErrPaymentNotFound, "payment", code)
	}
	return &p, nil
}

func (r *paymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) FindPendingByOGM(ctx context.Context, coopID, code string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).
		Where("ogm_code = ? AND coop_id = ? AND status = ?", code, coopID, models.PaymentStatusPending).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) MaxSequence(ctx context.Context, coopID string) (int, error) {
	var max int64
	// Unscoped: soft-deleted payments still own their sequence.
	err := r.db.WithContext(ctx).Unscoped().Model(&models.Payment{}).
		Select("COALESCE(MAX(ogm_sequence), 0)").
		Where("coop_id = ?", coopID).
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return int(max), nil
}

func (r *paymentRepository) TransitionStatus(ctx context.Context, id string, from []models.PaymentStatus, to models.PaymentStatus, at time.Time) (bool, error) {
	fields := map[string]interface{}{"status": to}
	switch to {
	case models.PaymentStatusMatched:
		fields["matched_at"] = at
	case models.PaymentStatusConfirmed:
		fields["confirmed_at"] = at
	}

	return affected(r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields))
}

package repository

import (
	"context"
	"time"

	apperrors "coopledger/internal/errors"
	"coopledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type shareRepository struct {
	db *gorm.DB
}

func (r *shareRepository) Create(ctx context.Context, share *models.Share) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(share).Error
}

func (r *shareRepository) GetByID(ctx context.Context, coopID, id string) (*models.Share, error) {
	var share models.Share
	err := r.db.WithContext(ctx).
		Preload("ShareClass").
		Where("id = ? AND coop_id = ?", id, coopID).
		First(&share).Error
	if err != nil {
		return nil, notFound(err, apperrors.ErrShareNotFound, "share", id)
	}
	return &share, nil
}

func (r *shareRepository) ClaimActive(ctx context.Context, coopID, id string) (bool, error) {
	return affected(r.db.WithContext(ctx).Model(&models.Share{}).
		Where("id = ? AND coop_id = ? AND status = ?", id, coopID, models.ShareStatusActive).
		Update("updated_at", time.Now().UTC()))
}

func (r *shareRepository) TransitionStatus(ctx context.Context, id string, from, to models.ShareStatus) (bool, error) {
	return affected(r.db.WithContext(ctx).Model(&models.Share{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to))
}

func (r *shareRepository) DecrementQuantity(ctx context.Context, id string, n int) (bool, error) {
	return affected(r.db.WithContext(ctx).Model(&models.Share{}).
		Where("id = ? AND status = ? AND quantity > ?", id, models.ShareStatusActive, n).
		Update("quantity", gorm.Expr("quantity - ?", n)))
}

func (r *shareRepository) ListEligibleForDividend(ctx context.Context, coopID string, before time.Time) ([]models.Share, error) {
	var shares []models.Share
	err := r.db.WithContext(ctx).
		Preload("ShareClass").
		Where("coop_id = ? AND status = ? AND purchase_date < ?", coopID, models.ShareStatusActive, before).
		Order("shareholder_id ASC, id ASC").
		Find(&shares).Error
	return shares, err
}

func (r *shareRepository) ListByShareholder(ctx context.Context, coopID, shareholderID string) ([]models.Share, error) {
	var shares []models.Share
	err := r.db.WithContext(ctx).
		Preload("ShareClass").
		Where("coop_id = ? AND shareholder_id = ?", coopID, shareholderID).
		Order("purchase_date ASC, id ASC").
		Find(&shares).Error
	return shares, err
}

package repository

import (
	"context"
	"time"

	apperrors "coopledger/internal/errors"
	"coopledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type dividendPeriodRepository struct {
	db *gorm.DB
}

func (r *dividendPeriodRepository) Create(ctx context.Context, period *models.DividendPeriod) error {
	return duplicate(r.db.WithContext(ctx).Create(period).Error, apperrors.ErrDuplicateDividendPeriod)
}

func (r *dividendPeriodRepository) GetByID(ctx context.Context, coopID, id string) (*models.DividendPeriod, error) {
	var p models.DividendPeriod
	if err := r.db.WithContext(ctx).Where("id = ? AND coop_id = ?", id, coopID).First(&p).Error; err != nil {
		return nil, notFound(err, apperrors.ErrDividendPeriodNotFound, "dividend period", id)
	}
	return &p, nil
}

func (r *dividendPeriodRepository) List(ctx context.Context, coopID string) ([]models.DividendPeriod, error) {
	var periods []models.DividendPeriod
	err := r.db.WithContext(ctx).Where("coop_id = ?", coopID).Order("year DESC").Find(&periods).Error
	return periods, err
}

func (r *dividendPeriodRepository) MarkCalculated(ctx context.Context, id string, at time.Time) (bool, error) {
	return affected(r.db.WithContext(ctx).Model(&models.DividendPeriod{}).
		Where("id = ? AND status <> ?", id, models.DividendPeriodStatusPaid).
		Updates(map[string]interface{}{
			"status":        models.DividendPeriodStatusCalculated,
			"calculated_at": at,
		}))
}

func (r *dividendPeriodRepository) MarkPaid(ctx context.Context, id, reference string, at time.Time) (bool, error) {
	return affected(r.db.WithContext(ctx).Model(&models.DividendPeriod{}).
		Where("id = ? AND status = ?", id, models.DividendPeriodStatusCalculated).
		Updates(map[string]interface{}{
			"status":            models.DividendPeriodStatusPaid,
			"paid_at":           at,
			"payment_reference": reference,
		}))
}

type dividendPayoutRepository struct {
	db *gorm.DB
}

func (r *dividendPayoutRepository) DeleteByPeriod(ctx context.Context, periodID string) (int64, error) {
	res := r.db.WithContext(ctx).Unscoped().
		Where("dividend_period_id = ?", periodID).
		Delete(&models.DividendPayout{})
	return res.RowsAffected, res.Error
}

func (r *dividendPayoutRepository) CreateBatch(ctx context.Context, payouts []models.DividendPayout) error {
	if len(payouts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).CreateInBatches(payouts, 200).Error
}

func (r *dividendPayoutRepository) ListByPeriod(ctx context.Context, coopID, periodID string) ([]models.DividendPayout, error) {
	var payouts []models.DividendPayout
	err := r.db.WithContext(ctx).
		Preload("Shareholder").
		Where("coop_id = ? AND dividend_period_id = ?", coopID, periodID).
		Order("shareholder_id ASC").
		Find(&payouts).Error
	return payouts, err
}

func (r *dividendPayoutRepository) MarkPaid(ctx context.Context, periodID, reference string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.DividendPayout{}).
		Where("dividend_period_id = ?", periodID).
		Updates(map[string]interface{}{
			"paid_at":           at,
			"payment_reference": reference,
		})
	return res.RowsAffected, res.Error
}

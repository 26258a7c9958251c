package repository

import (
	"context"

	apperrors "coopledger/internal/errors"
	"coopledger/internal/models"
	"coopledger/internal/pagination"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type transactionRepository struct {
	db *gorm.DB
}

func (r *transactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(txn).Error
}

func (r *transactionRepository) GetByID(ctx context.Context, coopID, id string) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Preload("Payment").
		Where("id = ? AND coop_id = ?", id, coopID).
		First(&txn).Error
	if err != nil {
		return nil, notFound(err, apperrors.ErrTransactionNotFound, "transaction", id)
	}
	return &txn, nil
}

func (r *transactionRepository) TransitionStatus(ctx context.Context, id string, from, to models.TransactionStatus, upd TransactionUpdate) (bool, error) {
	fields := map[string]interface{}{"status": to}
	if upd.ProcessedBy != "" {
		fields["processed_by"] = upd.ProcessedBy
	}
	if !upd.ProcessedAt.IsZero() {
		fields["processed_at"] = upd.ProcessedAt
	}
	if upd.RejectionReason != "" {
		fields["rejection_reason"] = upd.RejectionReason
	}

	return affected(r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields))
}

func (r *transactionRepository) SumSaleQuantity(ctx context.Context, shareID string, statuses ...models.TransactionStatus) (int, error) {
	var total int64
	query := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("share_id = ? AND type = ?", shareID, models.TransactionTypeSale)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if err := query.Scan(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}

func (r *transactionRepository) List(ctx context.Context, coopID string, filter TransactionFilter, page pagination.PageRequest) ([]models.Transaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Transaction{}).Where("coop_id = ?", coopID)
	if filter.ShareholderID != "" {
		query = query.Where("shareholder_id = ?", filter.ShareholderID)
	}
	if filter.ShareID != "" {
		query = query.Where("share_id = ?", filter.ShareID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txns []models.Transaction
	err := query.Preload("Payment").
		Scopes(pagination.Scope(page, "created_at DESC, id DESC")).
		Find(&txns).Error
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

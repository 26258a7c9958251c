package repository

import (
	"context"

	apperrors "coopledger/internal/errors"
	"coopledger/internal/models"
	"coopledger/internal/pagination"

	"gorm.io/gorm"
)

type bankImportRepository struct {
	db *gorm.DB
}

func (r *bankImportRepository) Create(ctx context.Context, imp *models.BankImport) error {
	return r.db.WithContext(ctx).Create(imp).Error
}

func (r *bankImportRepository) GetByID(ctx context.Context, coopID, id string) (*models.BankImport, error) {
	var imp models.BankImport
	if err := r.db.WithContext(ctx).Where("id = ? AND coop_id = ?", id, coopID).First(&imp).Error; err != nil {
		return nil, notFound(err, apperrors.ErrBankImportNotFound, "bank import", id)
	}
	return &imp, nil
}

func (r *bankImportRepository) List(ctx context.Context, coopID string, page pagination.PageRequest) ([]models.BankImport, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.BankImport{}).Where("coop_id = ?", coopID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var imports []models.BankImport
	if err := query.Scopes(pagination.Scope(page, "created_at DESC, id DESC")).Find(&imports).Error; err != nil {
		return nil, 0, err
	}
	return imports, total, nil
}

func (r *bankImportRepository) UpdateCounts(ctx context.Context, imp *models.BankImport) error {
	return r.db.WithContext(ctx).Model(imp).
		Select("row_count", "matched_count", "unmatched_count", "skipped_count").
		Updates(imp).Error
}

func (r *bankImportRepository) AdjustMatchCounts(ctx context.Context, id string, matched int) error {
	return r.db.WithContext(ctx).Model(&models.BankImport{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"matched_count":   gorm.Expr("matched_count + ?", matched),
			"unmatched_count": gorm.Expr("unmatched_count - ?", matched),
		}).Error
}

type bankTransactionRepository struct {
	db *gorm.DB
}

func (r *bankTransactionRepository) Create(ctx context.Context, bt *models.BankTransaction) error {
	return r.db.WithContext(ctx).Create(bt).Error
}

func (r *bankTransactionRepository) GetByID(ctx context.Context, coopID, id string) (*models.BankTransaction, error) {
	var bt models.BankTransaction
	if err := r.db.WithContext(ctx).Where("id = ? AND coop_id = ?", id, coopID).First(&bt).Error; err != nil {
		return nil, notFound(err, apperrors.ErrBankTransactionNotFound, "bank transaction", id)
	}
	return &bt, nil
}

func (r *bankTransactionRepository) MarkMatched(ctx context.Context, id string, match BankTransactionMatch) (bool, error) {
	fields := map[string]interface{}{
		"match_status":       match.Status,
		"matched_payment_id": match.PaymentID,
		"matched_at":         match.MatchedAt,
	}
	if match.MatchedBy != "" {
		fields["matched_by"] = match.MatchedBy
	}

	return affected(r.db.WithContext(ctx).Model(&models.BankTransaction{}).
		Where("id = ? AND match_status = ?", id, models.MatchStatusUnmatched).
		Updates(fields))
}

func (r *bankTransactionRepository) ListByImport(ctx context.Context, coopID, importID string, status models.MatchStatus, page pagination.PageRequest) ([]models.BankTransaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.BankTransaction{}).
		Where("coop_id = ? AND bank_import_id = ?", coopID, importID)
	if status != "" {
		query = query.Where("match_status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.BankTransaction
	if err := query.Scopes(pagination.Scope(page, "date ASC, id ASC")).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

package repository

import (
	"context"
	"time"

	apperrors "coopledger/internal/errors"
	"coopledger/internal/models"
	"coopledger/internal/pagination"

	"gorm.io/gorm"
)

type coopRepository struct {
	db *gorm.DB
}

func (r *coopRepository) Create(ctx context.Context, coop *models.Coop) error {
	return duplicate(r.db.WithContext(ctx).Create(coop).Error, apperrors.ErrConflict)
}

func (r *coopRepository) GetByID(ctx context.Context, id string) (*models.Coop, error) {
	var coop models.Coop
	if err := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&coop).Error; err != nil {
		return nil, notFound(err, apperrors.ErrCoopNotFound, "coop", id)
	}
	return &coop, nil
}

func (r *coopRepository) Touch(ctx context.Context, id string) error {
	ok, err := affected(r.db.WithContext(ctx).Model(&models.Coop{}).
		Where("id = ?", id).
		Update("updated_at", time.Now().UTC()))
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NotFound(apperrors.ErrCoopNotFound, "coop", id)
	}
	return nil
}

type shareholderRepository struct {
	db *gorm.DB
}

func (r *shareholderRepository) Create(ctx context.Context, shareholder *models.Shareholder) error {
	return duplicate(r.db.WithContext(ctx).Create(shareholder).Error, apperrors.ErrConflict)
}

func (r *shareholderRepository) GetByID(ctx context.Context, coopID, id string) (*models.Shareholder, error) {
	var sh models.Shareholder
	if err := r.db.WithContext(ctx).Where("id = ? AND coop_id = ?", id, coopID).First(&sh).Error; err != nil {
		return nil, notFound(err, apperrors.ErrShareholderNotFound, "shareholder", id)
	}
	return &sh, nil
}

func (r *shareholderRepository) List(ctx context.Context, coopID string, page pagination.PageRequest) ([]models.Shareholder, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Shareholder{}).Where("coop_id = ?", coopID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []models.Shareholder
	if err := query.Scopes(pagination.Scope(page, "created_at ASC, id ASC")).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

type projectRepository struct {
	db *gorm.DB
}

func (r *projectRepository) Create(ctx context.Context, project *models.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *projectRepository) GetByID(ctx context.Context, coopID, id string) (*models.Project, error) {
	var p models.Project
	if err := r.db.WithContext(ctx).Where("id = ? AND coop_id = ?", id, coopID).First(&p).Error; err != nil {
		return nil, notFound(err, apperrors.ErrProjectNotFound, "project", id)
	}
	return &p, nil
}

type shareClassRepository struct {
	db *gorm.DB
}

func (r *shareClassRepository) Create(ctx context.Context, class *models.ShareClass) error {
	return r.db.WithContext(ctx).Create(class).Error
}

func (r *shareClassRepository) GetByID(ctx context.Context, coopID, id string) (*models.ShareClass, error) {
	var c models.ShareClass
	if err := r.db.WithContext(ctx).Where("id = ? AND coop_id = ?", id, coopID).First(&c).Error; err != nil {
		return nil, notFound(err, apperrors.ErrShareClassNotFound, "share class", id)
	}
	return &c, nil
}

type auditLogRepository struct {
	db *gorm.DB
}

func (r *auditLogRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

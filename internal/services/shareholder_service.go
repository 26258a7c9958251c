package services

import (
	"context"
	"strings"

	apperrors "coopledger/internal/errors"
	"coopledger/internal/fieldcrypto"
	"coopledger/internal/models"
	"coopledger/internal/pagination"
	"coopledger/internal/repository"
)

// shareholderService is the shareholder registry. National IDs are encrypted
// before they reach the store and decrypted on the way out.
type shareholderService struct {
	uow    repository.UnitOfWork
	cipher fieldcrypto.Cipher
}

// NewShareholderService creates a new ShareholderServicer.
func NewShareholderService(uow repository.UnitOfWork, cipher fieldcrypto.Cipher) ShareholderServicer {
	return &shareholderService{uow: uow, cipher: cipher}
}

// CreateShareholder registers a shareholder.
func (s *shareholderService) CreateShareholder(ctx context.Context, coopID string, in ShareholderInput) (*ShareholderDetails, error) {
	switch in.Type {
	case models.ShareholderTypeIndividual:
		if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "First and last name are required for individuals")
		}
	case models.ShareholderTypeCompany:
		if strings.TrimSpace(in.CompanyName) == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Company name is required for companies")
		}
	default:
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Shareholder type must be INDIVIDUAL or COMPANY")
	}

	if _, err := s.uow.Coops().GetByID(ctx, coopID); err != nil {
		return nil, err
	}

	nationalID, err := s.cipher.Encrypt(strings.TrimSpace(in.NationalID))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	sh := &models.Shareholder{
		CoopID:      coopID,
		Type:        in.Type,
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		CompanyName: strings.TrimSpace(in.CompanyName),
		Email:       strings.ToLower(strings.TrimSpace(in.Email)),
		NationalID:  nationalID,
		IBAN:        normalizeIBAN(in.IBAN),
		BIC:         strings.ToUpper(strings.TrimSpace(in.BIC)),
		IsActive:    true,
	}
	if err := s.uow.Shareholders().Create(ctx, sh); err != nil {
		return nil, err
	}
	return s.details(sh)
}

// GetShareholder retrieves a shareholder with the national ID decrypted.
func (s *shareholderService) GetShareholder(ctx context.Context, coopID, shareholderID string) (*ShareholderDetails, error) {
	sh, err := s.uow.Shareholders().GetByID(ctx, coopID, shareholderID)
	if err != nil {
		return nil, err
	}
	return s.details(sh)
}

// ListShareholders retrieves a page of shareholders. PII stays encrypted.
func (s *shareholderService) ListShareholders(ctx context.Context, coopID string, page pagination.PageRequest) (*pagination.PageResponse[models.Shareholder], error) {
	page.Defaults()
	items, total, err := s.uow.Shareholders().List(ctx, coopID, page)
	if err != nil {
		return nil, err
	}
	resp := pagination.NewPageResponse(items, page.Page, page.PageSize, total)
	return &resp, nil
}

// GetShareholderShares retrieves every share a shareholder has held.
func (s *shareholderService) GetShareholderShares(ctx context.Context, coopID, shareholderID string) ([]models.Share, error) {
	if _, err := s.uow.Shareholders().GetByID(ctx, coopID, shareholderID); err != nil {
		return nil, err
	}
	shares, err := s.uow.Shares().ListByShareholder(ctx, coopID, shareholderID)
	if err != nil {
		return nil, err
	}
	if shares == nil {
		shares = []models.Share{}
	}
	return shares, nil
}

func (s *shareholderService) details(sh *models.Shareholder) (*ShareholderDetails, error) {
	nationalID, err := s.cipher.Decrypt(sh.NationalID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &ShareholderDetails{Shareholder: *sh, NationalID: nationalID}, nil
}

func normalizeIBAN(iban string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(iban), " ", ""))
}

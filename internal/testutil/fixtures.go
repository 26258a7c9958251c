package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"coopledger/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestCoop creates an active coop with a unique three-digit OGM prefix.
func CreateTestCoop(t *testing.T, db *gorm.DB) *models.Coop {
	t.Helper()

	n := nextID()
	coop := &models.Coop{
		Name:      fmt.Sprintf("Test Coop %d", n),
		OGMPrefix: fmt.Sprintf("%03d", n%1000),
		IBAN:      "BE68539007547034",
		BIC:       "GKCCBEBB",
		IsActive:  true,
	}
	if err := db.Create(coop).Error; err != nil {
		t.Fatalf("failed to create test coop: %v", err)
	}
	return coop
}

// CreateTestShareholder creates an active individual shareholder.
func CreateTestShareholder(t *testing.T, db *gorm.DB, coopID string) *models.Shareholder {
	t.Helper()

	n := nextID()
	sh := &models.Shareholder{
		CoopID:    coopID,
		Type:      models.ShareholderTypeIndividual,
		FirstName: "Test",
		LastName:  fmt.Sprintf("Member %d", n),
		Email:     fmt.Sprintf("member%d@test.com", n),
		IBAN:      "BE71096123456769",
		BIC:       "GKCCBEBB",
		IsActive:  true,
	}
	if err := db.Create(sh).Error; err != nil {
		t.Fatalf("failed to create test shareholder: %v", err)
	}
	return sh
}

// CreateTestShareClass creates an active share class at the given price with
// no per-purchase maximum.
func CreateTestShareClass(t *testing.T, db *gorm.DB, coopID string, price string) *models.ShareClass {
	t.Helper()

	n := nextID()
	class := &models.ShareClass{
		CoopID:        coopID,
		Code:          fmt.Sprintf("A%d", n),
		Name:          fmt.Sprintf("Class A%d", n),
		PricePerShare: decimal.RequireFromString(price),
		MinShares:     1,
		IsActive:      true,
	}
	if err := db.Create(class).Error; err != nil {
		t.Fatalf("failed to create test share class: %v", err)
	}
	return class
}

// CreateTestProject creates an active project.
func CreateTestProject(t *testing.T, db *gorm.DB, coopID string) *models.Project {
	t.Helper()

	project := &models.Project{
		CoopID:   coopID,
		Name:     fmt.Sprintf("Test Project %d", nextID()),
		IsActive: true,
	}
	if err := db.Create(project).Error; err != nil {
		t.Fatalf("failed to create test project: %v", err)
	}
	return project
}

// CreateTestShare creates a share directly in the given status, bypassing the
// purchase flow. The purchase price snapshot is the class price.
func CreateTestShare(t *testing.T, db *gorm.DB, holder *models.Shareholder, class *models.ShareClass, quantity int, status models.ShareStatus, purchaseDate time.Time) *models.Share {
	t.Helper()

	share := &models.Share{
		CoopID:                holder.CoopID,
		ShareholderID:         holder.ID,
		ShareClassID:          class.ID,
		Quantity:              quantity,
		PurchasePricePerShare: class.PricePerShare,
		PurchaseDate:          models.DateOnly(purchaseDate),
		Status:                status,
	}
	if err := db.Omit("ShareClass", "Shareholder").Create(share).Error; err != nil {
		t.Fatalf("failed to create test share: %v", err)
	}
	return share
}

// Deactivate sets is_active=false on a record. GORM skips zero values on
// create, so inactive fixtures are made active first and flipped here.
func Deactivate(t *testing.T, db *gorm.DB, model interface{}) {
	t.Helper()

	if err := db.Model(model).Update("is_active", false).Error; err != nil {
		t.Fatalf("failed to deactivate %T: %v", model, err)
	}
}

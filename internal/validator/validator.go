// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"coopledger/internal/models"
	"coopledger/internal/ogm"
)

var ibanRegex = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{11,30}$`)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		RegisterOn(v)
	}
}

// RegisterOn registers the custom validators on v.
func RegisterOn(v *validator.Validate) {
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{}, decimal.NullDecimal{})
	_ = v.RegisterValidation("ogm", validateOGM)
	_ = v.RegisterValidation("rate", validateRate)
	_ = v.RegisterValidation("iban", validateIBAN)
	_ = v.RegisterValidation("shareholder_type", validateShareholderType)
	_ = v.RegisterValidation("share_tx_type", validateShareTxType)
	_ = v.RegisterValidation("match_status", validateMatchStatus)
}

// decimalValue exposes decimals to validator as their string form so that
// required and the custom tags below can inspect them.
func decimalValue(field reflect.Value) interface{} {
	switch d := field.Interface().(type) {
	case decimal.Decimal:
		return d.String()
	case decimal.NullDecimal:
		if !d.Valid {
			return ""
		}
		return d.Decimal.String()
	}
	return nil
}

func validateOGM(fl validator.FieldLevel) bool {
	return ogm.IsValid(fl.Field().String())
}

// validateRate accepts a fraction between 0 and 1 inclusive.
func validateRate(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return !d.IsNegative() && d.LessThanOrEqual(decimal.NewFromInt(1))
}

func validateIBAN(fl validator.FieldLevel) bool {
	iban := strings.ToUpper(strings.ReplaceAll(fl.Field().String(), " ", ""))
	return ibanRegex.MatchString(iban)
}

func validateShareholderType(fl validator.FieldLevel) bool {
	switch models.ShareholderType(fl.Field().String()) {
	case models.ShareholderTypeIndividual, models.ShareholderTypeCompany:
		return true
	}
	return false
}

func validateShareTxType(fl validator.FieldLevel) bool {
	switch models.TransactionType(fl.Field().String()) {
	case models.TransactionTypePurchase, models.TransactionTypeSale,
		models.TransactionTypeTransferOut, models.TransactionTypeTransferIn:
		return true
	}
	return false
}

func validateMatchStatus(fl validator.FieldLevel) bool {
	switch models.MatchStatus(fl.Field().String()) {
	case models.MatchStatusUnmatched, models.MatchStatusAutoMatched, models.MatchStatusManualMatched:
		return true
	}
	return false
}

// Package ogm implements Belgian structured payment references ("OGM",
// gestructureerde mededeling): ten base digits followed by a two-digit mod-97
// check, written as +++AAA/BBBB/CCCCC+++.
package ogm

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// MaxSequence is the largest sequence that fits the seven-digit field.
	// Allocating past it is not supported.
	MaxSequence = 9_999_999

	digitCount = 12
	baseCount  = 10
)

var (
	ErrInvalidPrefix      = errors.New("ogm: prefix must be exactly 3 digits")
	ErrSequenceOutOfRange = fmt.Errorf("ogm: sequence must be between 1 and %d", MaxSequence)
	ErrInvalidFormat      = errors.New("ogm: reference must contain exactly 12 digits")
	ErrInvalidChecksum    = errors.New("ogm: check digits do not match")
)

// tokenPattern matches a reference anywhere in free text. Some banks print
// *** instead of +++ around the reference.
var tokenPattern = regexp.MustCompile(`[+*]{3}\s*(\d{3})\s*/\s*(\d{4})\s*/\s*(\d{5})\s*[+*]{3}`)

// Generate builds the reference for sequence within a coop prefix.
func Generate(prefix string, sequence int) (string, error) {
	if len(prefix) != 3 || !allDigits(prefix) {
		return "", ErrInvalidPrefix
	}
	if sequence < 1 || sequence > MaxSequence {
		return "", ErrSequenceOutOfRange
	}

	base := fmt.Sprintf("%s%07d", prefix, sequence)
	check, err := checkDigits(base)
	if err != nil {
		return "", err
	}
	return Format(base + check)
}

// Validate reports whether code is a well-formed reference with a matching
// check. Non-digit characters are ignored, so both the formatted and the bare
// twelve-digit forms are accepted.
func Validate(code string) error {
	digits := stripNonDigits(code)
	if len(digits) != digitCount {
		return ErrInvalidFormat
	}
	want, err := checkDigits(digits[:baseCount])
	if err != nil {
		return err
	}
	if digits[baseCount:] != want {
		return ErrInvalidChecksum
	}
	return nil
}

// IsValid is Validate as a predicate.
func IsValid(code string) bool {
	return Validate(code) == nil
}

// Extract finds the first reference-shaped token in text and returns it in
// canonical +++AAA/BBBB/CCCCC+++ form. The check digits are not verified.
func Extract(text string) (string, bool) {
	m := tokenPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	code, err := Format(m[1] + m[2] + m[3])
	if err != nil {
		return "", false
	}
	return code, true
}

// Format renders twelve digits as +++AAA/BBBB/CCCCC+++.
func Format(digits string) (string, error) {
	digits = stripNonDigits(digits)
	if len(digits) != digitCount {
		return "", ErrInvalidFormat
	}
	return "+++" + digits[0:3] + "/" + digits[3:7] + "/" + digits[7:12] + "+++", nil
}

// Sequence returns the sequence number encoded in code.
func Sequence(code string) (int, error) {
	if err := Validate(code); err != nil {
		return 0, err
	}
	digits := stripNonDigits(code)
	return strconv.Atoi(digits[3:baseCount])
}

func checkDigits(base string) (string, error) {
	n, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return "", ErrInvalidFormat
	}
	check := n % 97
	if check == 0 {
		check = 97
	}
	return fmt.Sprintf("%02d", check), nil
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

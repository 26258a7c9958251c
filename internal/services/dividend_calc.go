package services

import (
	"sort"

	"github.com/shopspring/decimal"

	"coopledger/internal/models"
)

const centPlaces = 2

// computePayouts turns the eligible shares of a period into one payout per
// shareholder. Lines group shares of one class bought at one price; each
// line's amount is rounded to cents before it is summed into the gross, and
// net is gross minus the rounded withholding tax. The output order is
// deterministic so repeated runs produce identical rows.
func computePayouts(period *models.DividendPeriod, shares []models.Share) []models.DividendPayout {
	type lineKey struct {
		classID string
		price   string
		rate    string
	}

	type holder struct {
		lines map[lineKey]*models.BreakdownLine
	}

	holders := make(map[string]*holder)
	for i := range shares {
		sh := &shares[i]

		rate := period.DividendRate
		className := ""
		if sh.ShareClass != nil {
			className = sh.ShareClass.Name
			if sh.ShareClass.DividendRateOverride.Valid {
				rate = sh.ShareClass.DividendRateOverride.Decimal
			}
		}

		h, ok := holders[sh.ShareholderID]
		if !ok {
			h = &holder{lines: make(map[lineKey]*models.BreakdownLine)}
			holders[sh.ShareholderID] = h
		}

		key := lineKey{classID: sh.ShareClassID, price: sh.PurchasePricePerShare.String(), rate: rate.String()}
		line, ok := h.lines[key]
		if !ok {
			line = &models.BreakdownLine{
				ShareClassID:   sh.ShareClassID,
				ShareClassName: className,
				PricePerShare:  sh.PurchasePricePerShare,
				TotalValue:     decimal.Zero,
				DividendRate:   rate,
			}
			h.lines[key] = line
		}
		line.Quantity += sh.Quantity
		line.TotalValue = line.TotalValue.Add(sh.Value())
	}

	shareholderIDs := make([]string, 0, len(holders))
	for id := range holders {
		shareholderIDs = append(shareholderIDs, id)
	}
	sort.Strings(shareholderIDs)

	payouts := make([]models.DividendPayout, 0, len(shareholderIDs))
	for _, id := range shareholderIDs {
		h := holders[id]

		lines := make([]models.BreakdownLine, 0, len(h.lines))
		gross := decimal.Zero
		for _, l := range h.lines {
			l.DividendAmount = l.TotalValue.Mul(l.DividendRate).Round(centPlaces)
			gross = gross.Add(l.DividendAmount)
			lines = append(lines, *l)
		}
		sortBreakdown(lines)

		tax := gross.Mul(period.WithholdingTaxRate).Round(centPlaces)
		payouts = append(payouts, models.DividendPayout{
			CoopID:           period.CoopID,
			DividendPeriodID: period.ID,
			ShareholderID:    id,
			GrossAmount:      gross,
			WithholdingTax:   tax,
			NetAmount:        gross.Sub(tax),
			Breakdown:        lines,
		})
	}
	return payouts
}

func sortBreakdown(lines []models.BreakdownLine) {
	sort.Slice(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if a.ShareClassName != b.ShareClassName {
			return a.ShareClassName < b.ShareClassName
		}
		if a.ShareClassID != b.ShareClassID {
			return a.ShareClassID < b.ShareClassID
		}
		if !a.PricePerShare.Equal(b.PricePerShare) {
			return a.PricePerShare.LessThan(b.PricePerShare)
		}
		return a.DividendRate.LessThan(b.DividendRate)
	})
}

// summarize totals a period's payouts.
func summarize(period *models.DividendPeriod, payouts []models.DividendPayout) *DividendSummary {
	sum := &DividendSummary{
		Period:           period,
		Payouts:          payouts,
		ShareholderCount: len(payouts),
		TotalGross:       decimal.Zero,
		TotalTax:         decimal.Zero,
		TotalNet:         decimal.Zero,
	}
	if sum.Payouts == nil {
		sum.Payouts = []models.DividendPayout{}
	}
	for _, p := range payouts {
		sum.TotalGross = sum.TotalGross.Add(p.GrossAmount)
		sum.TotalTax = sum.TotalTax.Add(p.WithholdingTax)
		sum.TotalNet = sum.TotalNet.Add(p.NetAmount)
	}
	return sum
}

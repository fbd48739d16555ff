package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// MarketFeed supplies raw listings. Implementations map missing fields to
// values that fail the scanner's filters.
type MarketFeed interface {
	Listings(ctx context.Context) ([]Candidate, error)
	TokenListings(ctx context.Context, token string) ([]Candidate, error)
}

// SecurityFeed supplies token security data for the risk evaluator.
type SecurityFeed interface {
	TokenSecurity(ctx context.Context, token string) (SecurityReport, error)
}

// NativePricer returns the USD price of the chain's native currency.
type NativePricer interface {
	NativeUSD(ctx context.Context) (decimal.Decimal, error)
}

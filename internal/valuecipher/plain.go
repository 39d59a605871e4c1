package valuecipher

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Plain stores values as their decimal string. Intended for development and
// for sources that are already encrypted at the storage layer.
type Plain struct{}

func (Plain) Encrypt(value decimal.Decimal) (string, error) {
	return value.String(), nil
}

func (Plain) Decrypt(token string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(token)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid value token: %w", err)
	}
	return d, nil
}

// Package util contains helper functions used around the code.
package util

import (
	"errors"
	"math/big"
	"strconv"
)

// ErrBadAmount is returned when an amount cannot be represented exactly in the token's base units.
var ErrBadAmount = errors.New("amount is not positive or has too many decimal places")

// ToBaseUnits scales a token amount to its base integer denomination, ie. 1.5 with 6 decimals becomes 1500000.
// The conversion is exact: amounts with more decimal places than the token carries are rejected rather than
// rounded.
func ToBaseUnits(amount float64, decimals uint8) (*big.Int, error) {
	if amount <= 0 {
		return nil, ErrBadAmount
	}
	// go through the shortest decimal representation so 0.1 means 1/10, not its binary approximation
	rat, ok := new(big.Rat).SetString(strconv.FormatFloat(amount, 'f', -1, 64))
	if !ok {
		return nil, ErrBadAmount
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat.Mul(rat, new(big.Rat).SetInt(scale))
	if !rat.IsInt() {
		return nil, ErrBadAmount
	}

	return new(big.Int).Set(rat.Num()), nil
}

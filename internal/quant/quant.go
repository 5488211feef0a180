// Package quant converts a decision-side (price, size, side) triple into the
// fixed-point maker/taker micro-USDC amounts the venue's wire format expects.
// It is the one place floating-point decision values cross into integer
// wire units (see DESIGN.md's "quantization boundary" note); no other
// package is allowed to round or scale a price or size.
package quant

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/0xspreadcap/polymarket-maker/pkg/types"
)

// QuantizationError reports why (price, size) could not be turned into a
// valid order. It is returned to the state machine as a placement failure,
// never as a fatal condition.
type QuantizationError struct {
	Reason string
	cause  error
}

func (e *QuantizationError) Error() string {
	return fmt.Sprintf("quantization: %s", e.Reason)
}

// Unwrap returns the sentinel (or other) cause behind the error.
func (e *QuantizationError) Unwrap() error { return e.cause }

// ErrZeroSize and ErrZeroPrice are the sentinel reasons behind a
// QuantizationError, exposed so callers can errors.Is against a stable value
// in tests without string-matching the message.
var (
	ErrZeroSize   = errors.New("size rounds to zero or less")
	ErrZeroPrice  = errors.New("price is zero or less")
	ErrZeroAmount = errors.New("maker or taker amount rounds to zero")
)

func newQuantError(cause error) *QuantizationError {
	return &QuantizationError{Reason: cause.Error(), cause: cause}
}

const microScale = 1_000_000

// Amounts holds the wire-side fixed-point representation produced by Quantize.
type Amounts struct {
	MakerAmount uint64
	TakerAmount uint64
	// SizeRounded and NotionalRounded are the decision-side rounded values
	// (s2, n5) that produced MakerAmount/TakerAmount, kept only for logging
	// and the round-trip property test — never fed back into a decision.
	SizeRounded     float64
	NotionalRounded float64
}

// Quantize implements the rounding rule: s2 = round(size, 2),
// n5 = round(price*s2, 5), then scales to micro-units (1e6) per side.
//
// For BUY:  maker_amount = micro(n5), taker_amount = micro(s2).
// For SELL: maker_amount = micro(s2), taker_amount = micro(n5).
func Quantize(side types.Side, price, size float64) (Amounts, error) {
	if price <= 0 {
		return Amounts{}, newQuantError(ErrZeroPrice)
	}

	s2 := decimal.NewFromFloat(size).Round(2)
	if s2.Sign() <= 0 {
		return Amounts{}, newQuantError(ErrZeroSize)
	}

	p := decimal.NewFromFloat(price)
	n5 := p.Mul(s2).Round(5)

	var makerDec, takerDec decimal.Decimal
	switch side {
	case types.BUY:
		makerDec, takerDec = n5, s2
	case types.SELL:
		makerDec, takerDec = s2, n5
	default:
		return Amounts{}, newQuantError(fmt.Errorf("unknown side %q", side))
	}

	makerMicro := micro(makerDec)
	takerMicro := micro(takerDec)
	if makerMicro == 0 || takerMicro == 0 {
		return Amounts{}, newQuantError(ErrZeroAmount)
	}

	s2f, _ := s2.Float64()
	n5f, _ := n5.Float64()
	return Amounts{
		MakerAmount:     makerMicro,
		TakerAmount:     takerMicro,
		SizeRounded:     s2f,
		NotionalRounded: n5f,
	}, nil
}

// micro scales a decimal value to an unsigned integer number of micro-units,
// rounding to the nearest integer (round-half-up, matching the venue's own
// on-chain scaling convention).
func micro(d decimal.Decimal) uint64 {
	scaled := d.Mul(decimal.NewFromInt(microScale)).Round(0)
	if scaled.Sign() <= 0 {
		return 0
	}
	return uint64(scaled.IntPart())
}

// Package order
package order

import (
	"fmt"
	"strings"
)

// TradeableObject identifies what is being traded: the owning strategy, the
// instrument, and one or more contract legs (YYYYMM or YYYYMMDD). More than
// one leg means a calendar-spread instrument.
//
// Immutable after construction.
type TradeableObject struct {
	strategyName   string
	instrumentCode string
	contractLegs   []string
}

// NewTradeableObject builds a tradeable identity. The leg list must be
// non-empty and every leg non-empty.
func NewTradeableObject(strategyName, instrumentCode string, contractLegs []string) (TradeableObject, error) {
	if len(contractLegs) == 0 {
		return TradeableObject{}, fmt.Errorf("tradeable object %s/%s has no contract legs: %w", strategyName, instrumentCode, ErrValidation)
	}
	for _, leg := range contractLegs {
		if leg == "" {
			return TradeableObject{}, fmt.Errorf("tradeable object %s/%s has an empty contract leg: %w", strategyName, instrumentCode, ErrValidation)
		}
	}
	legs := make([]string, len(contractLegs))
	copy(legs, contractLegs)
	return TradeableObject{
		strategyName:   strategyName,
		instrumentCode: instrumentCode,
		contractLegs:   legs,
	}, nil
}

// TradeableObjectFromKey parses a "strategy/instrument/leg[_leg...]" key.
// It is the exact inverse of Key.
func TradeableObjectFromKey(key string) (TradeableObject, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		return TradeableObject{}, fmt.Errorf("key %q is not strategy/instrument/contract: %w", key, ErrValidation)
	}
	legs := strings.Split(parts[2], "_")
	return NewTradeableObject(parts[0], parts[1], legs)
}

func (t TradeableObject) StrategyName() string   { return t.strategyName }
func (t TradeableObject) InstrumentCode() string { return t.instrumentCode }

// ContractLegs returns a copy of the leg list.
func (t TradeableObject) ContractLegs() []string {
	legs := make([]string, len(t.contractLegs))
	copy(legs, t.contractLegs)
	return legs
}

// ContractLegKey joins the legs with "_".
func (t TradeableObject) ContractLegKey() string {
	return strings.Join(t.contractLegs, "_")
}

// AltContractLegKey maps a 6-digit single-leg identifier to its 8-digit
// equivalent (appending "00") or the other way round, for lookups against
// systems using a different date granularity. Returns "" when the leg key
// is neither 6 nor 8 characters.
func (t TradeableObject) AltContractLegKey() string {
	legKey := t.ContractLegKey()
	switch len(legKey) {
	case 6:
		return legKey + "00"
	case 8:
		return legKey[:6]
	}
	return ""
}

// Key returns the canonical "strategy/instrument/leg[_leg...]" string.
func (t TradeableObject) Key() string {
	return strings.Join([]string{t.strategyName, t.instrumentCode, t.ContractLegKey()}, "/")
}

// AltKey is Key with the alternate leg identifier, or "" when there is none.
func (t TradeableObject) AltKey() string {
	altLegKey := t.AltContractLegKey()
	if altLegKey == "" {
		return ""
	}
	return strings.Join([]string{t.strategyName, t.instrumentCode, altLegKey}, "/")
}

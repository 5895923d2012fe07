package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Direction constants
const (
	DirectionBuy   = "BUY"
	DirectionSell  = "SELL"
	DirectionHedge = "HEDGE"
	DirectionFlat  = "FLAT"
)

// TrackedInstruments are the symbols the dashboard renders
var TrackedInstruments = []string{
	"XAUUSD", "BTCUSD", "ETHUSD", "EURUSD",
	"GBPUSD", "USDJPY", "AUDUSD", "USDCHF", "USOIL",
}

// Order is one open order reported by the authority
type Order struct {
	ID        string          `json:"id"`
	Direction string          `json:"direction"`
	Entry     decimal.Decimal `json:"entry"`
	Lots      decimal.Decimal `json:"lots"`
	Profit    decimal.Decimal `json:"profit"`
	Time      string          `json:"time"`
}

// Candle is one OHLC bar
type Candle struct {
	Time  FlexibleTime    `json:"time"`
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
}

// SignalSnapshot is the per-instrument record owned by the authority
type SignalSnapshot struct {
	Direction  string          `json:"direction"`
	Entry      decimal.Decimal `json:"entry"`
	StopLoss   decimal.Decimal `json:"sl"`
	TakeProfit decimal.Decimal `json:"tp"`
	Price      decimal.Decimal `json:"price"`
	LotSize    decimal.Decimal `json:"lots"`
	BuyCount   int             `json:"buys"`
	SellCount  int             `json:"sells"`
	Orders     []Order         `json:"orders,omitempty"`
	Candles    []Candle        `json:"candles,omitempty"`
}

// PairDetail is the per-instrument detail fetch; history and performance pass through untouched
type PairDetail struct {
	SignalSnapshot
	History     json.RawMessage `json:"history,omitempty"`
	Performance json.RawMessage `json:"performance,omitempty"`
}

// SignalSet maps instrument symbol to snapshot
type SignalSet map[string]SignalSnapshot

// Equal reports structural equality through the canonical encoding
func (s SignalSet) Equal(other SignalSet) bool {
	return CanonicalEqual(s, other)
}

// CanonicalEqual compares two values by their JSON encoding; map keys encode sorted
func CanonicalEqual(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// DecodeSignalSet accepts either a bare symbol map or {"signals": {...}}.
// Non-object members (timestamps, meta fields) are ignored. An instrument that
// cannot be decoded is left out of the set and reported in dropped; only an
// unreadable envelope or an upstream error fails the whole payload.
func DecodeSignalSet(data []byte) (set SignalSet, dropped map[string]error, err error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to decode signal payload: %w", err)
	}

	if msg, ok := raw["error"]; ok {
		var text string
		if json.Unmarshal(msg, &text) == nil && text != "" {
			return nil, nil, WrapError(ErrSignalFetchFailed, fmt.Errorf("upstream: %s", text))
		}
	}

	if inner, ok := raw["signals"]; ok && isJSONObject(inner) {
		return DecodeSignalSet(inner)
	}

	set = make(SignalSet, len(raw))
	for symbol, msg := range raw {
		if !isJSONObject(msg) {
			continue
		}
		var snap SignalSnapshot
		if err := json.Unmarshal(msg, &snap); err != nil {
			if dropped == nil {
				dropped = make(map[string]error)
			}
			dropped[symbol] = err
			continue
		}
		set[symbol] = snap
	}
	return set, dropped, nil
}

// DecodePairDetail decodes a single-instrument detail payload
func DecodePairDetail(data []byte) (*PairDetail, error) {
	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &envelope) == nil && envelope.Error != "" {
		return nil, WrapError(ErrSignalFetchFailed, fmt.Errorf("upstream: %s", envelope.Error))
	}

	var detail PairDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return nil, fmt.Errorf("failed to decode pair detail: %w", err)
	}
	return &detail, nil
}

// LastCandles returns at most n trailing candles
func (s SignalSnapshot) LastCandles(n int) []Candle {
	if n <= 0 || len(s.Candles) <= n {
		return s.Candles
	}
	return s.Candles[len(s.Candles)-n:]
}

func isJSONObject(msg json.RawMessage) bool {
	trimmed := bytes.TrimSpace(msg)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// CanonicalJSON re-encodes a payload so that equal documents compare byte-equal
func CanonicalJSON(data []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

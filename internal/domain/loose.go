package domain

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

// looseDecimal reads numbers and numeric strings; empty, null and unparseable values read as zero
type looseDecimal struct {
	decimal.Decimal
}

func (d *looseDecimal) UnmarshalJSON(b []byte) error {
	d.Decimal = decimal.Zero
	s := string(bytes.Trim(bytes.TrimSpace(b), `"`))
	if s == "" || s == "null" {
		return nil
	}
	if v, err := decimal.NewFromString(s); err == nil {
		d.Decimal = v
	}
	return nil
}

// looseString reads strings, numbers and booleans as text
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var text string
		if err := json.Unmarshal(b, &text); err != nil {
			return err
		}
		*s = looseString(text)
		return nil
	}
	*s = looseString(b)
	return nil
}

// looseInt reads integers, floats and numeric strings; anything else reads as zero
type looseInt int

func (n *looseInt) UnmarshalJSON(b []byte) error {
	*n = 0
	s := string(bytes.Trim(bytes.TrimSpace(b), `"`))
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*n = looseInt(v)
	}
	return nil
}

type orderWire struct {
	ID        looseString  `json:"id"`
	Direction looseString  `json:"direction"`
	Entry     looseDecimal `json:"entry"`
	Lots      looseDecimal `json:"lots"`
	Profit    looseDecimal `json:"profit"`
	Time      looseString  `json:"time"`
}

// UnmarshalJSON tolerates loosely typed order fields
func (o *Order) UnmarshalJSON(b []byte) error {
	var w orderWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*o = Order{
		ID:        string(w.ID),
		Direction: string(w.Direction),
		Entry:     w.Entry.Decimal,
		Lots:      w.Lots.Decimal,
		Profit:    w.Profit.Decimal,
		Time:      string(w.Time),
	}
	return nil
}

type candleWire struct {
	Time  FlexibleTime `json:"time"`
	Open  looseDecimal `json:"open"`
	High  looseDecimal `json:"high"`
	Low   looseDecimal `json:"low"`
	Close looseDecimal `json:"close"`
}

// UnmarshalJSON tolerates loosely typed prices
func (c *Candle) UnmarshalJSON(b []byte) error {
	var w candleWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*c = Candle{
		Time:  w.Time,
		Open:  w.Open.Decimal,
		High:  w.High.Decimal,
		Low:   w.Low.Decimal,
		Close: w.Close.Decimal,
	}
	return nil
}

type snapshotWire struct {
	Direction  looseString  `json:"direction"`
	Entry      looseDecimal `json:"entry"`
	StopLoss   looseDecimal `json:"sl"`
	TakeProfit looseDecimal `json:"tp"`
	Price      looseDecimal `json:"price"`
	LotSize    looseDecimal `json:"lots"`
	BuyCount   looseInt     `json:"buys"`
	SellCount  looseInt     `json:"sells"`
	Orders     []Order      `json:"orders"`
	Candles    []Candle     `json:"candles"`
}

// UnmarshalJSON tolerates loosely typed fields; the authority owns the contents
func (s *SignalSnapshot) UnmarshalJSON(b []byte) error {
	var w snapshotWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = SignalSnapshot{
		Direction:  string(w.Direction),
		Entry:      w.Entry.Decimal,
		StopLoss:   w.StopLoss.Decimal,
		TakeProfit: w.TakeProfit.Decimal,
		Price:      w.Price.Decimal,
		LotSize:    w.LotSize.Decimal,
		BuyCount:   int(w.BuyCount),
		SellCount:  int(w.SellCount),
		Orders:     w.Orders,
		Candles:    w.Candles,
	}
	return nil
}

// UnmarshalJSON decodes the embedded snapshot and the passthrough members
func (d *PairDetail) UnmarshalJSON(b []byte) error {
	var snap SignalSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return err
	}
	var extra struct {
		History     json.RawMessage `json:"history"`
		Performance json.RawMessage `json:"performance"`
	}
	if err := json.Unmarshal(b, &extra); err != nil {
		return err
	}
	*d = PairDetail{SignalSnapshot: snap, History: extra.History, Performance: extra.Performance}
	return nil
}

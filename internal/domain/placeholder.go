package domain

import "github.com/shopspring/decimal"

// PlaceholderSignals returns the fixed signal set shown while access is not active.
// Output depends only on the instrument list so repeated calls are identical.
func PlaceholderSignals(instruments []string) SignalSet {
	set := make(SignalSet, len(instruments))
	for i, symbol := range instruments {
		set[symbol] = placeholderSnapshot(i)
	}
	return set
}

func placeholderSnapshot(index int) SignalSnapshot {
	step := decimal.NewFromInt(int64(index))
	entry := decimal.RequireFromString("2345.50").Add(step.Mul(decimal.RequireFromString("5.25")))
	price := decimal.RequireFromString("2342.10").Add(step.Mul(decimal.RequireFromString("3.10")))
	lots := decimal.RequireFromString("0.80")

	return SignalSnapshot{
		Direction:  DirectionSell,
		Entry:      entry,
		StopLoss:   entry.Add(decimal.RequireFromString("14.50")),
		TakeProfit: entry.Sub(decimal.RequireFromString("25.50")),
		Price:      price,
		LotSize:    decimal.RequireFromString("2.40"),
		BuyCount:   0,
		SellCount:  3,
		Orders: []Order{
			{ID: "d1", Direction: DirectionSell, Entry: entry, Lots: lots, Profit: decimal.RequireFromString("-12.30"), Time: "12:21:05"},
			{ID: "d2", Direction: DirectionSell, Entry: entry.Add(decimal.RequireFromString("2.70")), Lots: lots, Profit: decimal.RequireFromString("-5.40"), Time: "12:25:14"},
			{ID: "d3", Direction: DirectionSell, Entry: entry.Add(decimal.RequireFromString("4.60")), Lots: lots, Profit: decimal.RequireFromString("3.10"), Time: "12:30:41"},
		},
	}
}

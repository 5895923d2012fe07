package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bareSignals = `{
	"XAUUSD": {"direction":"BUY","entry":2345.5,"sl":2330,"tp":2370,"price":2350.1,"lots":1.2,"buys":2,"sells":0,
		"orders":[{"id":"o1","direction":"BUY","entry":2345.5,"lots":0.6,"profit":12.5,"time":"10:00:01"}]},
	"EURUSD": {"direction":"HEDGE","entry":"1.0845","sl":"1.0800","tp":"1.0900","price":"1.0850","lots":"0.5","buys":1,"sells":1},
	"updated": "2024-06-01T10:00:00Z"
}`

func TestDecodeSignalSet_BareMap(t *testing.T) {
	set, _, err := DecodeSignalSet([]byte(bareSignals))
	require.NoError(t, err)
	require.Len(t, set, 2)

	xau := set["XAUUSD"]
	assert.Equal(t, DirectionBuy, xau.Direction)
	assert.True(t, xau.Entry.Equal(decimal.RequireFromString("2345.5")))
	assert.Equal(t, 2, xau.BuyCount)
	require.Len(t, xau.Orders, 1)
	assert.Equal(t, "o1", xau.Orders[0].ID)

	eur := set["EURUSD"]
	assert.True(t, eur.StopLoss.Equal(decimal.RequireFromString("1.08")))
}

func TestDecodeSignalSet_WrappedShape(t *testing.T) {
	wrapped := `{"signals":` + bareSignals + `}`

	a, _, err := DecodeSignalSet([]byte(bareSignals))
	require.NoError(t, err)
	b, _, err := DecodeSignalSet([]byte(wrapped))
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
}

func TestDecodeSignalSet_UpstreamError(t *testing.T) {
	_, _, err := DecodeSignalSet([]byte(`{"error":"Expired"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSignalFetchFailed))

	_, _, err = DecodeSignalSet([]byte(`not json`))
	require.Error(t, err)
}

func TestSignalSet_Equal(t *testing.T) {
	a, _, err := DecodeSignalSet([]byte(bareSignals))
	require.NoError(t, err)
	b, _, err := DecodeSignalSet([]byte(bareSignals))
	require.NoError(t, err)
	assert.True(t, a.Equal(b))

	snap := b["XAUUSD"]
	snap.Price = snap.Price.Add(decimal.NewFromInt(1))
	b["XAUUSD"] = snap
	assert.False(t, a.Equal(b))
}

func TestDecodePairDetail(t *testing.T) {
	payload := `{"direction":"SELL","entry":1,"sl":2,"tp":0.5,"price":1.1,"lots":1,
		"candles":[{"time":1717236000,"open":1,"high":2,"low":0.5,"close":1.5},{"time":"2024-06-01T10:05:00Z","open":1,"high":2,"low":0.5,"close":1.5}],
		"history":[{"a":1}],"performance":{"winRate":0.6}}`

	detail, err := DecodePairDetail([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, DirectionSell, detail.Direction)
	require.Len(t, detail.Candles, 2)
	assert.Equal(t, time.Unix(1717236000, 0).UTC(), detail.Candles[0].Time.Time)
	assert.JSONEq(t, `[{"a":1}]`, string(detail.History))
	assert.JSONEq(t, `{"winRate":0.6}`, string(detail.Performance))

	_, err = DecodePairDetail([]byte(`{"error":"Signal fetch failed"}`))
	assert.True(t, errors.Is(err, ErrSignalFetchFailed))
}

func TestSignalSnapshot_LastCandles(t *testing.T) {
	snap := SignalSnapshot{Candles: make([]Candle, 50)}
	assert.Len(t, snap.LastCandles(40), 40)
	assert.Len(t, snap.LastCandles(0), 50)
	assert.Len(t, SignalSnapshot{Candles: make([]Candle, 3)}.LastCandles(40), 3)
}

func TestPlaceholderSignals_Deterministic(t *testing.T) {
	a := PlaceholderSignals(TrackedInstruments)
	b := PlaceholderSignals(TrackedInstruments)

	require.Len(t, a, len(TrackedInstruments))
	assert.True(t, a.Equal(b))

	for _, symbol := range TrackedInstruments {
		snap, ok := a[symbol]
		require.True(t, ok, "missing placeholder for %s", symbol)
		assert.Equal(t, DirectionSell, snap.Direction)
		assert.NotEmpty(t, snap.Orders)
	}
}

func TestFlexibleTime_Formats(t *testing.T) {
	cases := []struct {
		input string
		want  time.Time
	}{
		{`"2024-01-01"`, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{`"2024-01-01T12:30:00Z"`, time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC)},
		{`1704067200`, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{`1704067200000`, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		var ft FlexibleTime
		require.NoError(t, ft.UnmarshalJSON([]byte(tc.input)), tc.input)
		assert.True(t, tc.want.Equal(ft.Time), "%s -> %v", tc.input, ft.Time)
	}

	var ft FlexibleTime
	require.NoError(t, ft.UnmarshalJSON([]byte(`null`)))
	assert.True(t, ft.IsZero())
	assert.Error(t, ft.UnmarshalJSON([]byte(`"not a date"`)))
}

func TestCanonicalJSON(t *testing.T) {
	a, err := CanonicalJSON([]byte(`{"b":1, "a":{"y":2,"x":[1,2]}}`))
	require.NoError(t, err)
	b, err := CanonicalJSON([]byte(`{"a":{"x":[1,2],"y":2},"b":1}`))
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	_, err = CanonicalJSON([]byte(`{`))
	assert.Error(t, err)
}

func TestDecodeSignalSet_LooseFields(t *testing.T) {
	payload := `{
		"XAUUSD": {"direction":"BUY","entry":2345.5,"price":2350.1},
		"EURUSD": {"direction":"SELL","entry":"","sl":null,"tp":"n/a","buys":"2","sells":1.0,
			"orders":[{"id":17,"direction":"SELL","entry":"1.08","profit":"","time":1717236000}]}
	}`

	set, dropped, err := DecodeSignalSet([]byte(payload))
	require.NoError(t, err)
	assert.Empty(t, dropped)
	require.Len(t, set, 2)

	eur := set["EURUSD"]
	assert.True(t, eur.Entry.IsZero())
	assert.True(t, eur.StopLoss.IsZero())
	assert.True(t, eur.TakeProfit.IsZero())
	assert.Equal(t, 2, eur.BuyCount)
	assert.Equal(t, 1, eur.SellCount)
	require.Len(t, eur.Orders, 1)
	assert.Equal(t, "17", eur.Orders[0].ID)
	assert.Equal(t, "1717236000", eur.Orders[0].Time)
	assert.True(t, eur.Orders[0].Profit.IsZero())
	assert.True(t, eur.Orders[0].Entry.Equal(decimal.RequireFromString("1.08")))
}

func TestDecodeSignalSet_DropsOnlyBrokenInstrument(t *testing.T) {
	payload := `{
		"XAUUSD": {"direction":"BUY","entry":2345.5,"price":2350.1},
		"EURUSD": {"direction":"SELL","orders":{"not":"a list"}},
		"GBPUSD": {"direction":"SELL","candles":[{"time":"not a date","open":1}]}
	}`

	set, dropped, err := DecodeSignalSet([]byte(payload))
	require.NoError(t, err)

	require.Len(t, set, 1)
	assert.True(t, set["XAUUSD"].Entry.Equal(decimal.RequireFromString("2345.5")))
	assert.Contains(t, dropped, "EURUSD")
	assert.Contains(t, dropped, "GBPUSD")
}

func TestDecodePairDetail_LooseFields(t *testing.T) {
	detail, err := DecodePairDetail([]byte(`{"direction":"BUY","entry":"","price":"2350.1","history":[1]}`))
	require.NoError(t, err)
	assert.True(t, detail.Entry.IsZero())
	assert.True(t, detail.Price.Equal(decimal.RequireFromString("2350.1")))
	assert.JSONEq(t, `[1]`, string(detail.History))
}

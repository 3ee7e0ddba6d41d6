package pnl

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeovahfialho/mt5-history/internal/domain"
)

func trade(closeTime string, profit float64) domain.Trade {
	return domain.Trade{Symbol: "EURUSD", Type: "Buy", Volume: 1, OpenPrice: 1.1, ClosePrice: 1.2, Profit: profit, CloseTime: closeTime}
}

func TestDateKey(t *testing.T) {
	tests := []struct {
		name      string
		closeTime string
		want      string
	}{
		{"date and time", "2023-06-01 11:00:00", "2023-06-01"},
		{"no time component", "2023-06-01", "2023-06-01"},
		{"empty", "", ""},
		{"leading space", " 11:00:00", ""},
		{"only first space splits", "2023-06-01 11:00:00 UTC", "2023-06-01"},
		{"garbage is kept", "not-a-date", "not-a-date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DateKey(tt.closeTime))
		})
	}
}

func TestDailyProfit_Example(t *testing.T) {
	trades := []domain.Trade{
		trade("2023-06-01 11:00:00", 110),
		trade("2023-06-02 15:30:00", -50),
		trade("2023-06-01 09:00:00", 20),
	}

	got := DailyProfit(trades)

	assert.Equal(t, []domain.DailyProfitPoint{
		{Date: "2023-06-01", Profit: 130},
		{Date: "2023-06-02", Profit: -50},
	}, got)
}

func TestDailyProfit_Empty(t *testing.T) {
	for _, in := range [][]domain.Trade{nil, {}} {
		got := DailyProfit(in)
		require.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestDailyProfit_CloseTimeWithoutSpace(t *testing.T) {
	got := DailyProfit([]domain.Trade{trade("2023-06-01", 15), trade("2023-06-01 10:00:00", 5)})

	assert.Equal(t, []domain.DailyProfitPoint{{Date: "2023-06-01", Profit: 20}}, got)
}

func TestDailyProfit_FirstSeenOrder(t *testing.T) {
	trades := []domain.Trade{
		trade("2023-06-03 10:00:00", 1),
		trade("2023-06-01 10:00:00", 2),
		trade("2023-06-03 12:00:00", 3),
		trade("2023-06-02 10:00:00", 4),
		trade("2023-06-01 18:00:00", 5),
	}

	got := DailyProfit(trades)

	dates := make([]string, len(got))
	for i, p := range got {
		dates[i] = p.Date
	}
	assert.Equal(t, []string{"2023-06-03", "2023-06-01", "2023-06-02"}, dates)
	assert.Equal(t, 4.0, got[0].Profit)
	assert.Equal(t, 7.0, got[1].Profit)
	assert.Equal(t, 4.0, got[2].Profit)
}

func TestDailyProfit_DoesNotMutateInput(t *testing.T) {
	trades := []domain.Trade{trade("2023-06-01 11:00:00", 110), trade("2023-06-01 12:00:00", 20)}
	snapshot := append([]domain.Trade(nil), trades...)

	_ = DailyProfit(trades)

	assert.Equal(t, snapshot, trades)
}

func TestDailyProfit_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 50; round++ {
		n := rng.Intn(200)
		trades := make([]domain.Trade, n)
		var inputSum float64
		distinct := map[string]bool{}
		var firstSeen []string

		for i := range trades {
			closeTime := fmt.Sprintf("2023-06-%02d %02d:00:00", 1+rng.Intn(10), rng.Intn(24))
			profit := float64(rng.Intn(2000)-1000) / 4
			trades[i] = trade(closeTime, profit)
			inputSum += profit

			key := DateKey(closeTime)
			if !distinct[key] {
				distinct[key] = true
				firstSeen = append(firstSeen, key)
			}
		}

		got := DailyProfit(trades)

		require.Len(t, got, len(distinct), "one entry per distinct date")

		var outputSum float64
		for i, p := range got {
			assert.Equal(t, firstSeen[i], p.Date, "first-seen order")
			outputSum += p.Profit
		}
		assert.InDelta(t, inputSum, outputSum, 1e-6, "profit is conserved")

		assert.Equal(t, got, DailyProfit(trades), "idempotent")
	}
}

func TestDailyProfit_ConcurrentCallers(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	trades := make([]domain.Trade, 2000)
	for i := range trades {
		trades[i] = trade(fmt.Sprintf("2023-06-%02d 10:00:00", 1+rng.Intn(28)), float64(rng.Intn(2001)-1000)/100)
	}

	want := DailyProfit(trades)
	wantCumulative := Cumulative(want)
	wantSummary := Summarize(trades)

	const callers = 16
	daily := make([][]domain.DailyProfitPoint, callers)
	cumulative := make([][]domain.DailyProfitPoint, callers)
	summaries := make([]domain.ProfitSummary, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			daily[i] = DailyProfit(trades)
			cumulative[i] = Cumulative(daily[i])
			summaries[i] = Summarize(trades)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		assert.Equal(t, want, daily[i], "caller %d", i)
		assert.Equal(t, wantCumulative, cumulative[i], "caller %d", i)
		assert.Equal(t, wantSummary, summaries[i], "caller %d", i)
	}
}

func TestCumulative(t *testing.T) {
	daily := []domain.DailyProfitPoint{
		{Date: "2023-06-01", Profit: 130},
		{Date: "2023-06-02", Profit: -50},
		{Date: "2023-06-03", Profit: 10},
	}

	got := Cumulative(daily)

	assert.Equal(t, []domain.DailyProfitPoint{
		{Date: "2023-06-01", Profit: 130},
		{Date: "2023-06-02", Profit: 80},
		{Date: "2023-06-03", Profit: 90},
	}, got)
	assert.Equal(t, -50.0, daily[1].Profit, "input untouched")
	assert.Empty(t, Cumulative(nil))
}

func BenchmarkDailyProfit(b *testing.B) {
	trades := make([]domain.Trade, 100000)
	for i := range trades {
		trades[i] = trade(fmt.Sprintf("2023-%02d-%02d 10:00:00", 1+i%12, 1+i%28), float64(i%200-100))
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = DailyProfit(trades)
	}
}

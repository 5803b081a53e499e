// Package report computes performance metrics and renders a console/file
// report over a completed replay's fills and snapshots.
package report

import (
	"math"

	"github.com/bikeshrana/pmbacktest/pkg/market"
)

// ClosedTrade is one realized-P&L event: a fill or resolution that closed
// some or all of a position. Unlike the flat long/short trade model this is
// adapted from, a ClosedTrade here may represent a partial close.
type ClosedTrade struct {
	MarketID string
	PnL      float64
	Timestamp float64
}

// IsWin reports whether the closed trade was profitable.
func (c ClosedTrade) IsWin() bool { return c.PnL > 0 }

// Calculator computes performance metrics from a sequence of closed trades
// and portfolio snapshots.
type Calculator struct {
	trades      []ClosedTrade
	snapshots   []market.Snapshot
	initialCash float64
}

// NewCalculator creates a Calculator.
func NewCalculator(trades []ClosedTrade, snapshots []market.Snapshot, initialCash float64) *Calculator {
	return &Calculator{trades: trades, snapshots: snapshots, initialCash: initialCash}
}

// Result holds every metric computed over a replay.
type Result struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64

	GrossProfit  float64
	GrossLoss    float64
	NetProfit    float64
	ProfitFactor float64
	AverageTrade float64
	AverageWin   float64
	AverageLoss  float64
	LargestWin   float64
	LargestLoss  float64

	MaxDrawdown    float64
	MaxDrawdownPct float64
	SharpeRatio    float64
	SortinoRatio   float64
	CalmarRatio    float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int

	FinalEquity float64
	TotalReturn float64
}

// Compute runs every metric and returns the aggregate Result.
func (c *Calculator) Compute() Result {
	r := Result{
		TotalTrades:   len(c.trades),
		WinningTrades: c.countWins(),
	}
	r.LosingTrades = r.TotalTrades - r.WinningTrades
	r.WinRate = c.winRate()
	r.GrossProfit = c.grossProfit()
	r.GrossLoss = c.grossLoss()
	r.NetProfit = c.netProfit()
	r.ProfitFactor = c.profitFactor()
	r.AverageTrade = c.averageTrade()
	r.AverageWin = c.averageWin()
	r.AverageLoss = c.averageLoss()
	r.LargestWin = c.largestWin()
	r.LargestLoss = c.largestLoss()
	r.MaxDrawdown = c.maxDrawdown()
	r.MaxDrawdownPct = c.maxDrawdownPct()
	r.SharpeRatio = c.sharpeRatio()
	r.SortinoRatio = c.sortinoRatio()
	r.MaxConsecutiveWins = c.maxConsecutiveWins()
	r.MaxConsecutiveLosses = c.maxConsecutiveLosses()

	if len(c.snapshots) > 0 {
		r.FinalEquity = c.snapshots[len(c.snapshots)-1].TotalEquity
		r.TotalReturn = r.FinalEquity - c.initialCash
	}
	r.CalmarRatio = c.calmarRatio(r.MaxDrawdownPct)

	return r
}

func (c *Calculator) countWins() int {
	n := 0
	for _, t := range c.trades {
		if t.IsWin() {
			n++
		}
	}
	return n
}

func (c *Calculator) winRate() float64 {
	if len(c.trades) == 0 {
		return 0
	}
	return float64(c.countWins()) / float64(len(c.trades)) * 100
}

func (c *Calculator) grossProfit() float64 {
	total := 0.0
	for _, t := range c.trades {
		if t.PnL > 0 {
			total += t.PnL
		}
	}
	return total
}

func (c *Calculator) grossLoss() float64 {
	total := 0.0
	for _, t := range c.trades {
		if t.PnL < 0 {
			total += math.Abs(t.PnL)
		}
	}
	return total
}

func (c *Calculator) netProfit() float64 {
	total := 0.0
	for _, t := range c.trades {
		total += t.PnL
	}
	return total
}

func (c *Calculator) profitFactor() float64 {
	profit, loss := c.grossProfit(), c.grossLoss()
	if loss == 0 {
		if profit > 0 {
			return 999.99
		}
		return 0
	}
	return profit / loss
}

func (c *Calculator) averageTrade() float64 {
	if len(c.trades) == 0 {
		return 0
	}
	return c.netProfit() / float64(len(c.trades))
}

func (c *Calculator) averageWin() float64 {
	wins := c.countWins()
	if wins == 0 {
		return 0
	}
	return c.grossProfit() / float64(wins)
}

func (c *Calculator) averageLoss() float64 {
	losses := len(c.trades) - c.countWins()
	if losses == 0 {
		return 0
	}
	return -c.grossLoss() / float64(losses)
}

func (c *Calculator) largestWin() float64 {
	max := 0.0
	for _, t := range c.trades {
		if t.PnL > max {
			max = t.PnL
		}
	}
	return max
}

func (c *Calculator) largestLoss() float64 {
	min := 0.0
	for _, t := range c.trades {
		if t.PnL < min {
			min = t.PnL
		}
	}
	return min
}

func (c *Calculator) maxDrawdown() float64 {
	if len(c.snapshots) == 0 {
		return 0
	}
	maxDD := 0.0
	peak := c.snapshots[0].TotalEquity
	for _, s := range c.snapshots {
		if s.TotalEquity > peak {
			peak = s.TotalEquity
		}
		if dd := peak - s.TotalEquity; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func (c *Calculator) maxDrawdownPct() float64 {
	if len(c.snapshots) == 0 {
		return 0
	}
	maxDD := 0.0
	peak := c.snapshots[0].TotalEquity
	for _, s := range c.snapshots {
		if s.TotalEquity > peak {
			peak = s.TotalEquity
		}
		if peak > 0 {
			if dd := (peak - s.TotalEquity) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// snapshotReturns computes percentage equity changes between consecutive
// snapshots, the analogue of daily returns in the source calculator this is
// adapted from.
func (c *Calculator) snapshotReturns() []float64 {
	if len(c.snapshots) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(c.snapshots)-1)
	for i := 1; i < len(c.snapshots); i++ {
		prev := c.snapshots[i-1].TotalEquity
		if prev == 0 {
			continue
		}
		returns = append(returns, (c.snapshots[i].TotalEquity-prev)/prev*100)
	}
	return returns
}

func (c *Calculator) sharpeRatio() float64 {
	returns := c.snapshotReturns()
	if len(returns) < 2 {
		return 0
	}

	avg := mean(returns)
	std := stddev(returns, avg)
	if std == 0 {
		return 0
	}
	return avg / std * math.Sqrt(float64(len(returns)))
}

func (c *Calculator) sortinoRatio() float64 {
	returns := c.snapshotReturns()
	if len(returns) < 2 {
		return 0
	}

	avg := mean(returns)
	downsideVariance := 0.0
	downsideCount := 0
	for _, ret := range returns {
		if ret < 0 {
			downsideVariance += ret * ret
			downsideCount++
		}
	}
	if downsideCount == 0 {
		return 999.99
	}
	downsideDev := math.Sqrt(downsideVariance / float64(downsideCount))
	if downsideDev == 0 {
		return 0
	}
	return avg / downsideDev * math.Sqrt(float64(len(returns)))
}

func (c *Calculator) calmarRatio(maxDrawdownPct float64) float64 {
	if maxDrawdownPct == 0 || len(c.snapshots) < 2 {
		return 0
	}
	start := c.snapshots[0].TotalEquity
	end := c.snapshots[len(c.snapshots)-1].TotalEquity
	if start == 0 {
		return 0
	}
	totalReturnPct := (end - start) / start * 100
	return totalReturnPct / maxDrawdownPct
}

func (c *Calculator) maxConsecutiveWins() int {
	max, cur := 0, 0
	for _, t := range c.trades {
		if t.IsWin() {
			cur++
			if cur > max {
				max = cur
			}
		} else {
			cur = 0
		}
	}
	return max
}

func (c *Calculator) maxConsecutiveLosses() int {
	max, cur := 0, 0
	for _, t := range c.trades {
		if !t.IsWin() {
			cur++
			if cur > max {
				max = cur
			}
		} else {
			cur = 0
		}
	}
	return max
}

func mean(xs []float64) float64 {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total / float64(len(xs))
}

func stddev(xs []float64, avg float64) float64 {
	variance := 0.0
	for _, x := range xs {
		diff := x - avg
		variance += diff * diff
	}
	variance /= float64(len(xs) - 1)
	return math.Sqrt(variance)
}

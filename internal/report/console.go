package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Printer renders a Result as a human-readable console report.
type Printer struct {
	result      Result
	marketID    string
	initialCash float64
}

// NewPrinter creates a Printer for a computed Result.
func NewPrinter(result Result, marketID string, initialCash float64) *Printer {
	return &Printer{result: result, marketID: marketID, initialCash: initialCash}
}

// Console renders the full report as a single string.
func (p *Printer) Console() string {
	var sb strings.Builder
	r := p.result

	sb.WriteString("\n")
	sb.WriteString("═══════════════════════════════════════════════════════════════════\n")
	sb.WriteString("                        BACKTEST RESULTS                            \n")
	sb.WriteString("═══════════════════════════════════════════════════════════════════\n\n")

	sb.WriteString("CONFIGURATION\n")
	sb.WriteString("───────────────────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("Market:           %s\n", p.marketID))
	sb.WriteString(fmt.Sprintf("Initial Cash:     $%.2f\n\n", p.initialCash))

	sb.WriteString("PERFORMANCE\n")
	sb.WriteString("───────────────────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("Final Equity:     $%.2f\n", r.FinalEquity))
	sb.WriteString(fmt.Sprintf("Total Return:     $%.2f\n\n", r.TotalReturn))

	sb.WriteString("TRADE STATISTICS\n")
	sb.WriteString("───────────────────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("Total Trades:     %d\n", r.TotalTrades))
	sb.WriteString(fmt.Sprintf("Winning Trades:   %d (%.1f%%)\n", r.WinningTrades, r.WinRate))
	sb.WriteString(fmt.Sprintf("Losing Trades:    %d\n", r.LosingTrades))
	sb.WriteString(fmt.Sprintf("Average Trade:    $%.4f\n", r.AverageTrade))
	sb.WriteString(fmt.Sprintf("Average Win:      $%.4f\n", r.AverageWin))
	sb.WriteString(fmt.Sprintf("Average Loss:     $%.4f\n", r.AverageLoss))
	sb.WriteString(fmt.Sprintf("Largest Win:      $%.4f\n", r.LargestWin))
	sb.WriteString(fmt.Sprintf("Largest Loss:     $%.4f\n\n", r.LargestLoss))

	sb.WriteString("PROFIT METRICS\n")
	sb.WriteString("───────────────────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("Gross Profit:     $%.4f\n", r.GrossProfit))
	sb.WriteString(fmt.Sprintf("Gross Loss:       $%.4f\n", r.GrossLoss))
	sb.WriteString(fmt.Sprintf("Profit Factor:    %.2f\n\n", r.ProfitFactor))

	sb.WriteString("RISK METRICS\n")
	sb.WriteString("───────────────────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("Max Drawdown:     $%.4f (%.2f%%)\n", r.MaxDrawdown, r.MaxDrawdownPct))
	sb.WriteString(fmt.Sprintf("Sharpe Ratio:     %.2f\n", r.SharpeRatio))
	sb.WriteString(fmt.Sprintf("Sortino Ratio:    %.2f\n", r.SortinoRatio))
	sb.WriteString(fmt.Sprintf("Calmar Ratio:     %.2f\n", r.CalmarRatio))
	sb.WriteString(fmt.Sprintf("Max Consec. Wins:   %d\n", r.MaxConsecutiveWins))
	sb.WriteString(fmt.Sprintf("Max Consec. Losses: %d\n", r.MaxConsecutiveLosses))

	sb.WriteString("═══════════════════════════════════════════════════════════════════\n")

	return sb.String()
}

// SaveToFile writes the console report to a timestamped file under dir.
func (p *Printer) SaveToFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("report: create output dir: %w", err)
	}

	filename := fmt.Sprintf("backtest_%s_%s.txt", p.marketID, time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, filename)

	if err := os.WriteFile(path, []byte(p.Console()), 0644); err != nil {
		return "", fmt.Errorf("report: write file: %w", err)
	}
	return path, nil
}

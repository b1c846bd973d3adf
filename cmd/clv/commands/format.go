package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wonny/clv-retention/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// PrintHeader prints a formatted command header
func PrintHeader(title string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
	PrintSeparator()
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Printf("⚠️  %s\n", message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// PrintSummary prints one strategy's budget outcome
func PrintSummary(name string, s contracts.StrategySummary) {
	fmt.Printf("\n  %s\n", name)
	PrintKeyValue("Targeted", fmt.Sprintf("%d", s.TargetedCustomers), 16)
	PrintKeyValue("Total cost", fmt.Sprintf("€%.2f", s.TotalCost), 16)
	PrintKeyValue("Prevented loss", fmt.Sprintf("€%.2f", s.ExpectedPreventedLoss), 16)
	PrintKeyValue("Net uplift", fmt.Sprintf("€%.2f", s.NetUplift), 16)
	PrintKeyValue("ROI", formatROI(s.ROI), 16)
}

func formatROI(roi *float64) string {
	if roi == nil {
		return "n/a (no spend)"
	}
	return fmt.Sprintf("%.2f", *roi)
}

// progressWriter is where the rolling build draws its bar
func progressWriter() io.Writer {
	return os.Stderr
}

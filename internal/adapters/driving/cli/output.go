package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#45475A"))
)

// styled reports whether output goes to a terminal.
func styled(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printJSON writes v as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// printTable renders rows under headers. Terminals get a bordered table,
// pipes get tab separated text.
func printTable(cmd *cobra.Command, headers []string, rows [][]string) {
	if !styled(cmd) {
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(headers, "\t"))
		for _, row := range rows {
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(row, "\t"))
		}
		return
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
}

// printFields renders label/value pairs, one per line.
func printFields(cmd *cobra.Command, fields [][2]string) {
	width := 0
	for _, f := range fields {
		width = max(width, len(f[0]))
	}
	for _, f := range fields {
		label := fmt.Sprintf("%-*s", width+1, f[0]+":")
		if styled(cmd) {
			label = mutedStyle.Render(label)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", label, f[1])
	}
}

// truncate shortens s to n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/provenance/errors"
)

var jsonOutput bool

// addJSONFlag gives a command tree a --json switch for machine-readable output
func addJSONFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal output")
	}
	fmt.Println(string(data))
	return nil
}

// renderTable prints rows under header, or a gray placeholder when empty
func renderTable(header []string, rows [][]string) error {
	if len(rows) == 0 {
		pterm.Println(pterm.Gray("(none)"))
		return nil
	}
	data := append(pterm.TableData{header}, rows...)
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', 2, 64)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// field prints one "label: value" line in the CLI's detail layout
func field(label string, value interface{}) {
	pterm.Printf("  %s %v\n", pterm.Gray(label+":"), value)
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// output writes command results as text, or as JSON with --json.
type output struct {
	w    io.Writer
	json bool
}

func newOutput(cmd *cobra.Command) *output {
	asJSON, _ := cmd.Flags().GetBool("json")
	return &output{w: cmd.OutOrStdout(), json: asJSON}
}

// emit prints v as JSON, or calls text for human-readable output.
func (o *output) emit(v any, text func()) error {
	if !o.json {
		text()
		return nil
	}
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o *output) success(format string, args ...any) {
	fmt.Fprintf(o.w, "✅ "+format+"\n", args...)
}

func (o *output) warning(format string, args ...any) {
	fmt.Fprintf(o.w, "⚠️  "+format+"\n", args...)
}

func (o *output) info(format string, args ...any) {
	fmt.Fprintf(o.w, format+"\n", args...)
}

func (o *output) header(title string) {
	fmt.Fprintln(o.w, title)
	fmt.Fprintln(o.w, strings.Repeat("=", len(title)))
}

func (o *output) divider() {
	fmt.Fprintln(o.w, strings.Repeat("-", 70))
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format("2006-01-02 15:04:05 MST")
}

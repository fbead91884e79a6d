package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/plexsphere/pcpmon/internal/fsutil"
)

// emit writes v according to the output flags: to --output as JSON, to
// stdout as JSON with --json, otherwise through render.
func emit(cmd *cobra.Command, v any, render func(w io.Writer) error) error {
	if outputFile != "" {
		if err := fsutil.WriteJSONAtomic(outputFile, v, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outputFile)
		return nil
	}
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return render(cmd.OutOrStdout())
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// bytesRate formats a bytes-per-second value.
func bytesRate(v float64) string {
	if v < 0 {
		v = 0
	}
	return humanize.Bytes(uint64(v)) + "/s"
}

func ibytes(v uint64) string {
	return humanize.IBytes(v)
}

// number formats a float with thousands separators and at most two decimals.
func number(v float64) string {
	return humanize.CommafWithDigits(v, 2)
}

package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

var ratesInterval time.Duration

var ratesCmd = &cobra.Command{
	Use:   "rates <metric>...",
	Short: "Sample metrics twice and print counters as per-second rates",
	Long: "rates fetches the named metrics, waits for the interval, fetches them\n" +
		"again and prints counters as per-second rates. Instant and discrete\n" +
		"metrics are reported with their latest value.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return commandError(cmd, err)
		}
		defer rt.Close()

		report, err := rt.engine.Rates(cmd.Context(), targetHost, args, ratesInterval)
		if err != nil {
			return commandError(cmd, err)
		}
		return emit(cmd, report, func(w io.Writer) error {
			fmt.Fprintf(w, "host %s, sampled over %s\n", report.Host, report.Elapsed.Round(time.Millisecond))
			for _, r := range report.Results {
				fmt.Fprintln(w, r.String())
			}
			printMissing(w, report.Missing)
			return nil
		})
	},
}

func init() {
	ratesCmd.Flags().DurationVar(&ratesInterval, "interval", time.Second, "time between the two samples")
	rootCmd.AddCommand(ratesCmd)
}

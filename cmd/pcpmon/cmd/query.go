package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/plexsphere/pcpmon/internal/metrics"
)

var queryCmd = &cobra.Command{
	Use:   "query <metric>...",
	Short: "Print the current raw values of metrics",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return commandError(cmd, err)
		}
		defer rt.Close()

		res, err := rt.engine.Query(cmd.Context(), targetHost, args)
		if err != nil {
			return commandError(cmd, err)
		}
		return emit(cmd, res, func(w io.Writer) error {
			tw := newTable(w)
			fmt.Fprintln(tw, "METRIC\tINSTANCE\tVALUE")
			for _, s := range res.Samples {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Metric, s.Instance, s.Value)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			printMissing(w, res.Missing)
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <pattern>",
	Short: "List metrics whose name matches a prefix or glob",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return commandError(cmd, err)
		}
		defer rt.Close()

		descs, err := rt.engine.Search(cmd.Context(), targetHost, args[0])
		if err != nil {
			return commandError(cmd, err)
		}
		return emit(cmd, descs, func(w io.Writer) error {
			if len(descs) == 0 {
				fmt.Fprintf(w, "no metrics match %q\n", args[0])
				return nil
			}
			tw := newTable(w)
			fmt.Fprintln(tw, "NAME\tKIND\tUNIT\tHELP")
			for _, d := range descs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, d.Kind, d.Unit, d.Help)
			}
			return tw.Flush()
		})
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe <metric>",
	Short: "Show the metadata of one metric",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return commandError(cmd, err)
		}
		defer rt.Close()

		d, err := rt.engine.Describe(cmd.Context(), targetHost, args[0])
		if err != nil {
			return commandError(cmd, err)
		}
		return emit(cmd, d, func(w io.Writer) error {
			fmt.Fprintf(w, "Name:       %s\n", d.Name)
			fmt.Fprintf(w, "Kind:       %s\n", d.Kind)
			fmt.Fprintf(w, "Unit:       %s\n", d.Unit)
			if d.Type != "" {
				fmt.Fprintf(w, "Type:       %s\n", d.Type)
			}
			fmt.Fprintf(w, "Instances:  %t\n", d.HasInstances)
			if d.InDom != "" {
				fmt.Fprintf(w, "InDom:      %s\n", d.InDom)
			}
			if d.Help != "" {
				fmt.Fprintf(w, "Help:       %s\n", d.Help)
			}
			return nil
		})
	},
}

var namespacesCmd = &cobra.Command{
	Use:   "namespaces",
	Short: "List the top-level metric namespaces and active PMDAs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return commandError(cmd, err)
		}
		defer rt.Close()

		rep, err := rt.engine.Namespaces(cmd.Context(), targetHost)
		if err != nil {
			return commandError(cmd, err)
		}
		return emit(cmd, rep, func(w io.Writer) error {
			fmt.Fprintf(w, "Host:         %s\n", rep.Host)
			fmt.Fprintf(w, "Active PMDAs: %d", len(rep.ActivePMDAs))
			if len(rep.ActivePMDAs) > 0 {
				fmt.Fprintf(w, " (%s)", strings.Join(rep.ActivePMDAs, ", "))
			}
			fmt.Fprintln(w)
			fmt.Fprintf(w, "Namespaces:   %d\n", len(rep.Namespaces))
			for _, ns := range rep.Namespaces {
				fmt.Fprintf(w, "  %s\n", ns)
			}
			return nil
		})
	},
}

func printMissing(w io.Writer, missing []metrics.MetricAnnotation) {
	for _, m := range missing {
		fmt.Fprintf(w, "missing: %s (%s)\n", m.Metric, m.Reason)
	}
}

func init() {
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(namespacesCmd)
}

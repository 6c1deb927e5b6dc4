package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/john/prayerlog/internal/sink"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "List prayer requests stored in SQLite",
		RunE:  runRequests,
	}

	cmd.Flags().IntP("limit", "l", 20, "Max results (0 for all)")
	cmd.Flags().StringP("format", "f", "text", "Output format: text or json")

	RootCmd.AddCommand(cmd)
}

func runRequests(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	format, _ := cmd.Flags().GetString("format")

	cfg, closeLog, err := readConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	db, err := sink.NewSQLite(cfg.Sink.SQLite.Path, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	requests, err := db.List(cmd.Context(), limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		b, _ := json.MarshalIndent(requests, "", "  ")
		fmt.Fprintln(out, string(b))
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATA/HORA\tAUTOR\tPROBABILIDADE\tPEDIDO")
	for _, r := range requests {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Timestamp, r.Author, r.Probability, r.Content)
	}
	return w.Flush()
}

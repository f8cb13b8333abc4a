package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"corporatepay-reconciliation/cmd/reconciler/config"
	"corporatepay-reconciliation/internal/matcher"
	"corporatepay-reconciliation/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	candidateLedger   []string
	candidateInvoices []string
	candidateLine     string
	candidateLimit    int
	candidateJSON     bool
)

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Rank ledger transactions for one invoice line",
	Long: `Candidates loads the inputs and lists the transactions that could settle
one invoice line, best first, with the score and the reasons behind it.

Examples:
  reconciler candidates --ledger ledger.csv --invoices invoices.csv --line INV-1001-1
  reconciler candidates -l ledger.csv -i invoices.csv --line INV-1001-1 --limit 3 --json`,
	RunE: runCandidates,
}

func init() {
	rootCmd.AddCommand(candidatesCmd)

	candidatesCmd.Flags().StringSliceVarP(&candidateLedger, "ledger", "l", []string{}, "comma-separated paths to ledger CSV files (required)")
	candidatesCmd.Flags().StringSliceVarP(&candidateInvoices, "invoices", "i", []string{}, "comma-separated paths to invoice line CSV files (required)")
	candidatesCmd.Flags().StringVar(&candidateLine, "line", "", "invoice line id (required)")
	candidatesCmd.Flags().IntVarP(&candidateLimit, "limit", "n", 0, "number of candidates (default: matching.max_suggestions)")
	candidatesCmd.Flags().BoolVar(&candidateJSON, "json", false, "print JSON instead of a table")

	candidatesCmd.MarkFlagRequired("line")
}

func runCandidates(cmd *cobra.Command, args []string) error {
	if candidateLimit < 0 {
		return errors.ValidationError(errors.CodeOutOfRange, "limit", candidateLimit,
			fmt.Errorf("limit cannot be negative"))
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	loaded, err := loadWorkspace(ctx, candidateLedger, candidateInvoices, nil)
	if err != nil {
		return err
	}
	ws := loaded.Workspace

	lineID := strings.TrimSpace(candidateLine)
	candidates, err := ws.Candidates(lineID, candidateLimit)
	if err != nil {
		return err
	}
	remaining, err := ws.LineRemaining(lineID)
	if err != nil {
		return err
	}

	if candidateJSON {
		return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
			"lineId":     lineID,
			"remaining":  remaining,
			"candidates": candidates,
		})
	}
	return writeCandidateTable(cmd.OutOrStdout(), lineID, remaining, candidates)
}

func writeCandidateTable(w io.Writer, lineID string, remaining decimal.Decimal, candidates []matcher.Candidate) error {
	fmt.Fprintf(w, "Line %s, open amount %s\n\n", lineID, remaining.StringFixed(2))
	if len(candidates) == 0 {
		fmt.Fprintln(w, "No candidates within the matching window.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tTRANSACTION\tVENDOR\tDATE\tREMAINING\tSCORE\tRULE\tREASONS")
	for i, c := range candidates {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%.2f\t%s\t%s\n",
			i+1,
			c.Transaction.ID,
			c.Transaction.Vendor,
			c.Transaction.OccurredAt.Format(config.DateLayout),
			c.Remaining.StringFixed(2),
			c.Score,
			c.RuleName,
			strings.Join(c.Reasons, "; "),
		)
	}
	return tw.Flush()
}

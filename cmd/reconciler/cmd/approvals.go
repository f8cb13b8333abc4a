package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"corporatepay-reconciliation/cmd/reconciler/config"
	"corporatepay-reconciliation/internal/approvals"
	"corporatepay-reconciliation/internal/metrics"
	"corporatepay-reconciliation/pkg/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	approvalsJSON     bool
	approvalsWorkflow string
	approvalsStatus   string
	approvalsActor    string
	approvalsComment  string
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Work the approvals inbox",
	Long: `Approvals lists and decides approval items kept in the configured store.
An empty store is filled with the demo inbox on first use.

Examples:
  reconciler approvals list --workflow "Travel Request" --status pending
  reconciler approvals get APR-1001
  reconciler approvals update-status APR-1001 approved --comment "within budget"
  reconciler approvals workflows --backend sqlite --dsn approvals.db`,
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List approval items",
	Args:  cobra.NoArgs,
	RunE: withApprovals(func(ctx context.Context, cmd *cobra.Command, svc *approvals.Service, args []string) error {
		filter := approvals.Filter{Workflow: approvalsWorkflow}
		if approvalsStatus != "" {
			status, err := approvals.ParseStatus(approvalsStatus)
			if err != nil {
				return errors.ValidationError(errors.CodeInvalidData, "status", approvalsStatus, err)
			}
			filter.Status = status
		}

		items, err := svc.List(ctx, filter)
		if err != nil {
			return err
		}
		if approvalsJSON {
			return writeJSON(cmd.OutOrStdout(), items)
		}
		return writeApprovalTable(cmd.OutOrStdout(), items)
	}),
}

var approvalsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one approval item with its audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: withApprovals(func(ctx context.Context, cmd *cobra.Command, svc *approvals.Service, args []string) error {
		item, err := svc.GetByID(ctx, args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), item)
	}),
}

var approvalsUpdateCmd = &cobra.Command{
	Use:   "update-status <id> <status>",
	Short: "Approve, reject or escalate an approval item",
	Args:  cobra.ExactArgs(2),
	RunE: withApprovals(func(ctx context.Context, cmd *cobra.Command, svc *approvals.Service, args []string) error {
		status, err := approvals.ParseStatus(args[1])
		if err != nil {
			return errors.ValidationError(errors.CodeInvalidData, "status", args[1], err).
				WithSuggestion("use Approved, Rejected or Escalated")
		}

		item, err := svc.UpdateStatus(ctx, args[0], status, approvalsActor, approvalsComment)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", item.ID, item.Status)
		return nil
	}),
}

var approvalsWorkflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "List the distinct workflow names",
	Args:  cobra.NoArgs,
	RunE: withApprovals(func(ctx context.Context, cmd *cobra.Command, svc *approvals.Service, args []string) error {
		workflows, err := svc.GetWorkflows(ctx)
		if err != nil {
			return err
		}
		if approvalsJSON {
			return writeJSON(cmd.OutOrStdout(), workflows)
		}
		for _, w := range workflows {
			fmt.Fprintln(cmd.OutOrStdout(), w)
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(approvalsCmd)
	approvalsCmd.AddCommand(approvalsListCmd, approvalsGetCmd, approvalsUpdateCmd, approvalsWorkflowsCmd)

	// Store flags
	approvalsCmd.PersistentFlags().String("backend", "memory", "approvals store: memory, file, sqlite, redis")
	approvalsCmd.PersistentFlags().String("store-path", "approvals.json", "JSON document of the file store")
	approvalsCmd.PersistentFlags().String("dsn", "approvals.db", "database path of the sqlite store")
	approvalsCmd.PersistentFlags().String("redis-addr", "localhost:6379", "address of the redis store")
	approvalsCmd.PersistentFlags().BoolVar(&approvalsJSON, "json", false, "print JSON instead of a table")

	viper.BindPFlag("approvals.backend", approvalsCmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("approvals.path", approvalsCmd.PersistentFlags().Lookup("store-path"))
	viper.BindPFlag("approvals.dsn", approvalsCmd.PersistentFlags().Lookup("dsn"))
	viper.BindPFlag("approvals.redis_addr", approvalsCmd.PersistentFlags().Lookup("redis-addr"))

	approvalsListCmd.Flags().StringVar(&approvalsWorkflow, "workflow", "", "only items of this workflow")
	approvalsListCmd.Flags().StringVar(&approvalsStatus, "status", "", "only items in this status")

	approvalsUpdateCmd.Flags().StringVar(&approvalsActor, "actor", "", "who made the decision (default: system)")
	approvalsUpdateCmd.Flags().StringVar(&approvalsComment, "comment", "", "comment stored in the audit trail")
}

type approvalsFunc func(ctx context.Context, cmd *cobra.Command, svc *approvals.Service, args []string) error

// withApprovals opens the configured store around fn
func withApprovals(fn approvalsFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(context.Background())
		defer cancel()

		store, err := openApprovalStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		return fn(ctx, cmd, approvals.NewService(store, nil), args)
	}
}

func openApprovalStore(ctx context.Context) (approvals.Store, error) {
	storeConfig, err := config.CreateStoreConfig(viper.GetViper())
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "approvals", viper.GetString("approvals.backend"), err)
	}
	return approvals.OpenStore(ctx, storeConfig)
}

// newApprovalsService opens the configured store for the HTTP server
func newApprovalsService(ctx context.Context, recorder metrics.Recorder) (*approvals.Service, approvals.Store, error) {
	store, err := openApprovalStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return approvals.NewService(store, &approvals.ServiceOptions{Recorder: recorder}), store, nil
}

func writeApprovalTable(w io.Writer, items []approvals.ApprovalItem) error {
	if len(items) == 0 {
		fmt.Fprintln(w, "No approval items.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWORKFLOW\tTITLE\tREQUESTER\tDEPARTMENT\tAMOUNT\tSTATUS")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s %s\t%s\n",
			item.ID, item.Workflow, item.Title, item.Requester, item.Department,
			item.Amount.StringFixed(2), item.Currency, item.Status)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

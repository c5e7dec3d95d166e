package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/koompi/nimmit-assistant/pkg/audit"
	"github.com/koompi/nimmit-assistant/pkg/config"
	"github.com/koompi/nimmit-assistant/pkg/maintenance"
)

var maintenanceRunAll bool

func init() {
	rootCmd.AddCommand(newMaintenanceCmd())
}

// taskRunner is the part of the maintenance runner the commands drive.
type taskRunner interface {
	Run(ctx context.Context, id string) (*maintenance.Summary, error)
	RunAll(ctx context.Context) map[string]maintenance.Outcome
	List() []maintenance.TaskInfo
}

func newMaintenanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "List and run consistency tasks",
	}

	cmd.AddCommand(newMaintenanceListCmd())
	cmd.AddCommand(newMaintenanceRunCmd())

	return cmd
}

func newMaintenanceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered consistency tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printTasks(cmd.OutOrStdout(), maintenance.NewRunner(nil, config.MaintenanceConfig{}).List())
		},
	}
}

func newMaintenanceRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [task-id]",
		Short: "Run one consistency task, or all of them with --all",
		Long: `Run a consistency task against the configured store and print its summary
as JSON. With --all every registered task runs in turn; one failing task does
not stop the others.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if maintenanceRunAll == (len(args) == 1) {
				return errors.New("specify exactly one of a task id or --all")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger()

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			runner := newMaintenanceRunner(cfg, st, audit.NewRecorder(st, logger), logger)
			taskID := ""
			if len(args) == 1 {
				taskID = args[0]
			}
			return runMaintenance(cmd.Context(), runner, taskID, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&maintenanceRunAll, "all", false, "run every registered task")

	return cmd
}

// runMaintenance runs taskID, or every task when taskID is empty, and writes
// the result to out as indented JSON.
func runMaintenance(ctx context.Context, runner taskRunner, taskID string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var result any
	if taskID == "" {
		result = runner.RunAll(ctx)
	} else {
		sum, err := runner.Run(ctx, taskID)
		if err != nil {
			return err
		}
		result = sum
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func printTasks(out io.Writer, tasks []maintenance.TaskInfo) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Name, t.Description)
	}
	return w.Flush()
}

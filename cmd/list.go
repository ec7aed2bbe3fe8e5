package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/rollcall/internal/ledger"
	"github.com/andresmejia3/rollcall/internal/store"
	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/spf13/cobra"
)

var (
	listFrom    string
	listHistory string
	listLimit   int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded attendance",
	Long:  "Prints the attendance CSV. With --from db the PostgreSQL mirror is read instead, including sighting counts.",
	Run: func(cmd *cobra.Command, args []string) {
		runList(cmd.Context())
	},
}

func init() {
	listCmd.Flags().StringVar(&listFrom, "from", "ledger", "Where to read from: ledger or db")
	listCmd.Flags().StringVar(&listHistory, "history", "", "Show the sighting history of one name (db only)")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum history rows")
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context) {
	switch listFrom {
	case "ledger":
		rows, err := ledger.ReadFile(Cfg.LedgerPath)
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println("No attendance recorded yet.")
			return
		}
		if err != nil {
			utils.Die("Failed to read attendance ledger", err, nil)
		}
		printLedger(os.Stdout, rows)

	case "db":
		if DB == nil {
			utils.Die("No database configured", errors.New("pass --db or set database.url / POSTGRES_HOST"), nil)
		}
		if listHistory != "" {
			sightings, err := DB.History(ctx, listHistory, listLimit)
			if err != nil {
				utils.Die("Failed to read sighting history", err, nil)
			}
			printHistory(os.Stdout, sightings)
			return
		}
		rows, err := DB.ListAttendance(ctx)
		if err != nil {
			utils.Die("Failed to list attendance", err, nil)
		}
		printAttendance(os.Stdout, rows)

	default:
		utils.Die("Invalid --from", fmt.Errorf("expected ledger or db, got %q", listFrom), nil)
	}
}

func printLedger(out io.Writer, rows []types.AttendanceRecord) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No attendance recorded yet.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tLAST SEEN")
	fmt.Fprintln(w, "----\t---------")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\n", r.Name, r.Timestamp)
	}
	w.Flush()
}

func printAttendance(out io.Writer, rows []store.Attendance) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No attendance found in database.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tLAST SEEN\tSIGHTINGS")
	fmt.Fprintln(w, "----\t---------\t---------")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%d\n", r.Name, r.LastSeen.Format(types.TimestampLayout), r.Sightings)
	}
	w.Flush()
}

func printHistory(out io.Writer, rows []store.Sighting) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No sightings found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tSEEN AT")
	fmt.Fprintln(w, "----\t-------")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\n", r.Name, r.SeenAt.Format(types.TimestampLayout))
	}
	w.Flush()
}

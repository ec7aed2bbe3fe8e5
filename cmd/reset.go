package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/andresmejia3/rollcall/internal/ledger"
	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetLedger bool
	resetDB     bool
	resetYes    bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset attendance state (CSV ledger, database mirror)",
	Long:  "Clears recorded attendance. By default, it resets everything. Use flags to clear specific components.",
	Run: func(cmd *cobra.Command, args []string) {
		// If no flags are set, default to clearing EVERYTHING
		if !resetLedger && !resetDB {
			resetLedger = true
			resetDB = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetLedger {
			if resetYes || confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to delete %s?", Cfg.LedgerPath)) {
				fmt.Println("🗑️  Clearing Attendance Ledger...")
				book, err := ledger.Open(Cfg.LedgerPath)
				if err != nil {
					utils.Die("Failed to open attendance ledger", err, nil)
				}
				if err := book.Reset(); err != nil {
					utils.Die("Failed to reset attendance ledger", err, nil)
				}
			}
		}

		if resetDB {
			if DB == nil {
				fmt.Println("ℹ️  No database configured, skipping.")
			} else if resetYes || confirm(reader, "⚠️  Are you sure you want to DROP all database tables?") {
				fmt.Println("🗑️  Clearing Database...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.Die("Failed to reset database", err, nil)
				}
			}
		}

		fmt.Println("✨ Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetLedger, "ledger", false, "Delete the attendance CSV")
	resetCmd.Flags().BoolVar(&resetDB, "mirror", false, "Clear the PostgreSQL mirror (connection from --db or config)")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

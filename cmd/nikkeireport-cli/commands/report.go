package commands

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"nikkeireport-backend/lib/serviceutil"
	"nikkeireport-backend/lib/sqliteutil"
	"nikkeireport-backend/services/nikkeireport"
	"nikkeireport-backend/services/nikkeireport/db"
)

var (
	reportDate *string
	reportDb   *string
)

func init() {
	reportDate = reportCmd.Flags().String("date", "", "Target date in YYYYMMDD form. Required.")
	reportDb = reportCmd.Flags().String("db", defaultDatabase, "The database to read reports from.")
	reportCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(reportCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report --date YYYYMMDD",
	Short: "Prints the stored reports for a date.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := nikkeireport.ValidateTargetDate(*reportDate); err != nil {
			serviceutil.Fatal("invalid target date", err)
		}

		database, err := sqliteutil.OpenDB(db.Schema, *reportDb)
		if err != nil {
			serviceutil.Fatal("failed to open db", err)
		}
		defer database.Close()

		rows, err := db.New(database).ListReports(cmd.Context(), *reportDate)
		if err != nil {
			serviceutil.Fatal("failed to list reports", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{
			"code", "sector", "name", "price", "per",
			"yield", "pbr", "roe", "earning yield",
		})
		for _, r := range rows {
			t.AppendRow(table.Row{
				r.Code, r.Sector, r.Name, r.Price, r.Per,
				r.YieldRate, r.Pbr, r.Roe, r.EarningYield,
			})
		}
		t.Render()
	},
}

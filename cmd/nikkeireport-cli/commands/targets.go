package commands

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"nikkeireport-backend/lib/serviceutil"
	"nikkeireport-backend/lib/sqliteutil"
	"nikkeireport-backend/services/nikkeireport"
	"nikkeireport-backend/services/nikkeireport/db"
)

var (
	targetsDate *string
	targetsDb   *string
)

func init() {
	targetsDate = targetsImportCmd.Flags().String("date", "", "Target date in YYYYMMDD form. Required.")
	targetsDb = targetsImportCmd.Flags().String("db", defaultDatabase, "The database to import targets into.")
	targetsImportCmd.MarkFlagRequired("date")
	targetsCmd.AddCommand(targetsImportCmd)
	rootCmd.AddCommand(targetsCmd)
}

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Manages the table of (code, url) scrape targets.",
}

var targetsImportCmd = &cobra.Command{
	Use:   "import --date YYYYMMDD <file.csv>",
	Short: "Imports 'code,url' rows for a date. An optional header row is skipped.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := nikkeireport.ValidateTargetDate(*targetsDate); err != nil {
			serviceutil.Fatal("invalid target date", err)
		}

		f, err := os.Open(args[0])
		if err != nil {
			serviceutil.Fatal("failed to open targets file", err)
		}
		defer f.Close()

		database, err := sqliteutil.OpenDB(db.Schema, *targetsDb)
		if err != nil {
			serviceutil.Fatal("failed to open db", err)
		}
		defer database.Close()
		qry := db.New(database)

		ctx := cmd.Context()
		reader := csv.NewReader(f)
		reader.FieldsPerRecord = -1

		imported := 0
		for {
			row, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				serviceutil.Fatal("failed to read targets file", err)
			}
			if len(row) < 2 {
				serviceutil.Fatal("malformed targets file", fmt.Errorf("expected 'code,url' rows, got %d columns", len(row)))
			}
			if row[0] == "code" {
				continue
			}

			err = qry.InsertTarget(ctx, db.InsertTargetParams{
				Code:       row[0],
				TargetDate: *targetsDate,
				Nikkeiurl:  row[1],
			})
			if err != nil {
				serviceutil.Fatal("failed to insert target", err)
			}
			imported++
		}

		slog.Info("imported targets", "target_date", *targetsDate, "count", imported)
	},
}

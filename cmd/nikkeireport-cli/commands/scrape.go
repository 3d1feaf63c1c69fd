package commands

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"nikkeireport-backend/lib/configutil"
	"nikkeireport-backend/lib/serviceutil"
	"nikkeireport-backend/lib/sqliteutil"
	"nikkeireport-backend/services/nikkeireport"
	"nikkeireport-backend/services/nikkeireport/db"
)

// Config holds the optional defaults read from nikkeireport.json5;
// flags always win over it.
type Config struct {
	Database     string `json:"database"`
	Concurrency  int    `json:"concurrency"`
	DelaySeconds int    `json:"delay_seconds"`
	UserAgent    string `json:"user_agent"`
}

const defaultDatabase = "market_data.db"

func readConfig() Config {
	cfg, err := configutil.ReadConfig[Config]("nikkeireport.json5")
	if err != nil && !os.IsNotExist(err) {
		serviceutil.Fatal("failed to read config", err)
	}
	return cfg
}

var (
	scrapeDate         *string
	scrapeMode         *string
	scrapeBatchSize    *int
	scrapeDb           *string
	scrapeCsv          *string
	scrapeConcurrency  *int
	scrapeDelay        *time.Duration
	scrapeIgnoreRobots *bool
)

func init() {
	scrapeDate = scrapeCmd.Flags().String("date", "", "Target date in YYYYMMDD form. Required.")
	scrapeMode = scrapeCmd.Flags().String("mode", "missing", "Which targets to fetch: 'missing' (not yet stored) or 'all'.")
	scrapeBatchSize = scrapeCmd.Flags().Int("batch-size", nikkeireport.DefaultBatchSize, "Rows buffered between database commits.")
	scrapeDb = scrapeCmd.Flags().String("db", "", "The database to read targets from and write reports to.")
	scrapeCsv = scrapeCmd.Flags().String("csv", "", "Write reports to this csv file instead of the database.")
	scrapeConcurrency = scrapeCmd.Flags().Int("concurrency", 0, "Concurrent fetch workers.")
	scrapeDelay = scrapeCmd.Flags().Duration("delay", 0, "Base delay between requests.")
	scrapeIgnoreRobots = scrapeCmd.Flags().Bool("ignore-robots", false, "Skip the robots.txt check.")
	scrapeCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape --date YYYYMMDD [--mode missing|all]",
	Short: "Fetches report pages for a date and stores the extracted fields.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := nikkeireport.ValidateTargetDate(*scrapeDate); err != nil {
			serviceutil.Fatal("invalid target date", err)
		}
		cfg := readConfig()

		dbPath := *scrapeDb
		if dbPath == "" {
			dbPath = cfg.Database
		}
		if dbPath == "" {
			dbPath = defaultDatabase
		}
		database, err := sqliteutil.OpenDB(db.Schema, dbPath)
		if err != nil {
			serviceutil.Fatal("failed to open db", err)
		}
		defer database.Close()

		var sink nikkeireport.Sink
		if *scrapeCsv != "" {
			out, err := os.Create(*scrapeCsv)
			if err != nil {
				serviceutil.Fatal("failed to create csv file", err)
			}
			sink, err = nikkeireport.NewCsvSink(out)
			if err != nil {
				serviceutil.Fatal("failed to write csv header", err)
			}
		} else {
			sink = nikkeireport.NewSqliteSink(database, *scrapeBatchSize)
		}

		concurrency := *scrapeConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Concurrency
		}
		delay := *scrapeDelay
		if delay <= 0 {
			delay = time.Duration(cfg.DelaySeconds) * time.Second
		}
		fetcher := nikkeireport.NewFetcher(nikkeireport.FetchOptions{
			Concurrency:  concurrency,
			Delay:        delay,
			UserAgent:    cfg.UserAgent,
			IgnoreRobots: *scrapeIgnoreRobots,
		})

		runner := nikkeireport.NewRunner(database, sink, fetcher)
		err = runner.Run(cmd.Context(), *scrapeDate, nikkeireport.ParseMode(*scrapeMode))
		if err != nil {
			serviceutil.Fatal("scrape run failed", err)
		}
	},
}

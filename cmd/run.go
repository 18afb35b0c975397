package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"benchq/internal/cli"
	"benchq/internal/config"
	"benchq/internal/export"
	"benchq/internal/promexport"
	"benchq/internal/runner"
	"benchq/internal/storage"
	"benchq/internal/tui/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every (environment, endpoint, iteration) of a matrix",
	Example: `  benchq run --config matrix.yaml
  benchq run --config matrix.yaml --tui --out results/baseline
  benchq run --config matrix.yaml --metrics-addr :9100`,
	RunE: runMatrix,
}

func init() {
	f := runCmd.Flags()
	f.StringP("config", "c", "matrix.yaml", "matrix configuration file")
	f.Bool("tui", false, "show the full-screen dashboard instead of line output")
	f.String("out", "", "write results to <out>.csv and <out>.json")
	f.String("db", "", "results database (default is $HOME/.benchq/results.db)")
	f.Bool("no-store", false, "do not record results in the database")
	f.String("metrics-addr", "", "expose Prometheus metrics on this address while running")
	f.String("export-dir", ".", "directory for exports triggered from the dashboard")

	for _, name := range []string{"tui", "out", "no-store", "metrics-addr", "export-dir"} {
		viper.BindPFlag(name, f.Lookup(name))
	}
}

func runMatrix(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	useTUI := viper.GetBool("tui")
	log, logFile, err := newLogger(useTUI)
	if err != nil {
		return errors.Wrap(err, "logger")
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sinks runner.MultiSink

	var store *storage.Store
	if !viper.GetBool("no-store") {
		store, err = openStore(dbPath(cmd))
		if err != nil {
			return err
		}
		sinks = append(sinks, store)
	}

	var files *export.Files
	if prefix := viper.GetString("out"); prefix != "" {
		files, err = export.Create(prefix)
		if err != nil {
			sinks.Close()
			return err
		}
		sinks = append(sinks, files)
	}

	var prom *promexport.Exporter
	if addr := viper.GetString("metrics-addr"); addr != "" {
		prom = promexport.New(log)
		sinks = append(sinks, prom)
		go func() {
			if err := prom.Serve(ctx, addr); err != nil {
				log.WithError(err).Error("metrics endpoint stopped")
			}
		}()
	}

	r := runner.NewRunner(cfg, sinks, log)

	var report *runner.Report
	if useTUI {
		report, err = app.Run(ctx, cfg, r, viper.GetString("export-dir"))
		if err != nil {
			log.WithError(err).Error("dashboard exited with error")
		}
	} else {
		report = cli.Start(ctx, cfg, r, os.Stdout)
	}

	if prom != nil {
		prom.RecordState(runner.StateSkipped.String(), report.Counts[runner.StateSkipped])
		prom.RecordState(runner.StateFailed.String(), report.Counts[runner.StateFailed])
	}

	if store != nil {
		saveSession(store, cfg, report, log)
	}

	if err := sinks.Close(); err != nil {
		log.WithError(err).Warn("closing result sinks")
	}

	if useTUI {
		cli.PrintSummary(os.Stdout, report)
	}
	if files != nil {
		fmt.Printf("📄 Results written to %s and %s\n", files.CSVPath, files.JSONPath)
	}

	if ctx.Err() != nil {
		return errors.New("run interrupted")
	}
	return nil
}

// dbPath prefers an explicit --db, then BENCHQ_DB or the settings file.
func dbPath(cmd *cobra.Command) string {
	if f := cmd.Flags().Lookup("db"); f != nil && f.Changed {
		return f.Value.String()
	}
	return viper.GetString("db")
}

func openStore(path string) (*storage.Store, error) {
	if path == "" {
		def, err := storage.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = def
	}
	return storage.Open(path)
}

func saveSession(store *storage.Store, cfg *config.Config, report *runner.Report, log logrus.FieldLogger) {
	ids := make([]string, 0, len(report.Results))
	for _, res := range report.Results {
		ids = append(ids, res.ID)
	}

	id, err := store.SaveSession(storage.Session{
		Config: *cfg,
		Summary: storage.SessionSummary{
			Complete:       report.Counts[runner.StateComplete],
			Skipped:        report.Counts[runner.StateSkipped],
			Failed:         report.Counts[runner.StateFailed],
			ElapsedSeconds: report.Elapsed.Seconds(),
			RunIDs:         ids,
		},
	})
	if err != nil {
		log.WithError(err).Warn("session not recorded")
		return
	}
	log.WithFields(logrus.Fields{"session": id, "db": store.Path()}).Info("session recorded")
}

package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"benchq/internal/cli"
	"benchq/internal/export"
	"benchq/internal/tui/history"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List results recorded by previous runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(dbPath(cmd))
		if err != nil {
			return err
		}
		defer store.Close()

		if browse, _ := cmd.Flags().GetBool("tui"); browse {
			return history.Run(store)
		}

		if n, _ := cmd.Flags().GetInt("sessions"); n > 0 {
			sessions, err := store.Sessions(n)
			if err != nil {
				return err
			}
			for _, s := range sessions {
				fmt.Printf("%s  %s  complete=%d skipped=%d failed=%d  %.1fs\n",
					s.Timestamp.Format("2006-01-02 15:04:05"), s.ID,
					s.Summary.Complete, s.Summary.Skipped, s.Summary.Failed, s.Summary.ElapsedSeconds)
			}
			return nil
		}

		results, err := store.List()
		if err != nil {
			return err
		}

		path, _ := cmd.Flags().GetString("csv")
		if path == "" {
			cli.PrintResults(os.Stdout, results)
			return nil
		}

		f, err := os.Create(path)
		if err != nil {
			return errors.Wrap(err, "create csv")
		}
		w := export.NewCSVWriter(f)
		if err := w.WriteAll(results); err != nil {
			w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		fmt.Printf("📄 %d results written to %s\n", len(results), path)
		return nil
	},
}

func init() {
	resultsCmd.Flags().String("db", "", "results database (default is $HOME/.benchq/results.db)")
	resultsCmd.Flags().String("csv", "", "write the stored results to this CSV file")
	resultsCmd.Flags().Bool("tui", false, "browse recorded sessions interactively")
	resultsCmd.Flags().Int("sessions", 0, "list the N most recent sessions instead of results")
}

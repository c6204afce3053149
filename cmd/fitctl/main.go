// Command fitctl logs workouts and meals and tracks goals against a local
// SQLite file.
package main

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"example.com/fittrack/internal/config"
	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/persistence/sqlite"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes one command line and closes the database afterwards, also
// when the command fails.
func run(args []string, out io.Writer) error {
	defaults, err := config.LoadCLI()
	if err != nil {
		return err
	}

	a := &app{}
	defer func() { _ = a.close() }()

	root := newRootCmd(a, defaults)
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	return root.Execute()
}

// app holds the services opened for a single invocation.
type app struct {
	dbPath    string
	weekStart string

	db      *sql.DB
	entries *domain.EntryStore
	goals   *domain.GoalTracker
}

func newRootCmd(a *app, defaults config.CLI) *cobra.Command {
	root := &cobra.Command{
		Use:           "fitctl",
		Short:         "Log activities and meals, and track fitness goals",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.dbPath, "db", defaults.SQLitePath, "SQLite database file")
	root.PersistentFlags().StringVar(&a.weekStart, "week-start", defaults.WeekStart, "First day of the week for weekly goals")

	root.AddCommand(
		newActivityCmd(a),
		newNutritionCmd(a),
		newEntriesCmd(a),
		newGoalCmd(a),
		newSummaryCmd(a),
		newExportCmd(a),
	)
	return root
}

func (a *app) open(cmd *cobra.Command) error {
	weekStart, err := config.ParseWeekday(a.weekStart)
	if err != nil {
		return err
	}
	db, err := sqlite.Open(cmd.Context(), a.dbPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", a.dbPath, err)
	}
	repo := sqlite.NewRepository(db)
	a.db = db
	a.entries = domain.NewEntryStore(repo)
	a.goals = domain.NewGoalTracker(repo, repo, domain.WithWeekStart(weekStart))
	return nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// parseDayFlag returns the zero time for an empty flag.
func parseDayFlag(name, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	day, err := domain.ParseDay(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must use YYYY-MM-DD", name)
	}
	return day, nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func printf(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format, args...)
}

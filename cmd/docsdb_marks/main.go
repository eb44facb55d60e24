package main

import (
	"fmt"
	"io"
	"os"

	"github.com/feelsunbreeze/docsdb_marks/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

type options struct {
	username    string
	askPassword bool
	course      string
	term        string
	assignment  string
	csvPath     string
	ccidColumn  string
	scoreColumn string
	submit      bool
	verbose     bool
}

var readPassword = promptPassword

func newLogger(level string, verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	if verbose {
		lvl = logrus.DebugLevel
	}
	log.SetLevel(lvl)
	return log
}

func newRootCommand(cfg *config.Config, out io.Writer) *cobra.Command {
	opts := &options{}

	cmdRoot := &cobra.Command{
		Use:   "docsdb_marks",
		Short: "Read marks from a spreadsheet and submit them to DoC's DB",
		Long: "Read marks from a CSV or Excel file and submit them to the University of\n" +
			"Alberta Department of Computing Science database (DoC's DB).\n\n" +
			"Without -s nothing is sent: the marks are processed and printed for review.\n\n" +
			"   Example: docsdb_marks -u ta1 -p -c \"CMPUT 174\" -t \"Fall 2019\" -a \"Assignment 1\" -f marks.csv",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, flag := range []string{"course", "term", "assignment", "csv"} {
				if !cmd.Flags().Changed(flag) {
					return fmt.Errorf("required flag \"%s\" not set", flag)
				}
			}
			return runSync(cfg, opts, out)
		},
	}

	flags := cmdRoot.PersistentFlags()
	flags.StringVarP(&opts.username, "username", "u", cfg.Username, "your DoC's DB username")
	flags.BoolVarP(&opts.askPassword, "password", "p", false, "prompt for your password (do NOT type it on the command line)")
	flags.StringVarP(&opts.course, "course", "c", "", "course in the form \"CMPUT 174\"")
	flags.StringVarP(&opts.term, "term", "t", "", "term, e.g. \"Fall 2019\"")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log every request")

	local := cmdRoot.Flags()
	local.StringVarP(&opts.assignment, "assignment", "a", "", "assignment as listed in the 'Enter Section Marks' menu, e.g. \"Assignment 1\"")
	local.StringVarP(&opts.csvPath, "csv", "f", "", "path to the marks spreadsheet (.csv, .tsv or .xlsx)")
	local.StringVar(&opts.ccidColumn, "csv-ccid", cfg.CCIDColumn, "CCID column name in the spreadsheet")
	local.StringVar(&opts.scoreColumn, "csv-score", cfg.ScoreColumn, "score column name in the spreadsheet")
	local.BoolVarP(&opts.submit, "submit", "s", false, "upload the marks; otherwise only print what would be submitted")

	cmdRoster := &cobra.Command{
		Use:   "roster",
		Short: "print the CCID to student id mapping of a course",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, flag := range []string{"course", "term"} {
				if !cmd.Flags().Changed(flag) {
					return fmt.Errorf("required flag \"%s\" not set", flag)
				}
			}
			return runRoster(cfg, opts, out)
		},
	}
	cmdRoot.AddCommand(cmdRoster)
	cmdRoot.SetOut(out)

	return cmdRoot
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := newRootCommand(cfg, os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		os.Exit(1)
	}
}

package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/feelsunbreeze/docsdb_marks/internal/config"
	"github.com/feelsunbreeze/docsdb_marks/internal/docsdb"
	"github.com/feelsunbreeze/docsdb_marks/internal/marks"
	"github.com/sirupsen/logrus"
)

var errPasswordRequired = errors.New("Password is required.")

func newClient(cfg *config.Config, log logrus.FieldLogger) *docsdb.Client {
	client := docsdb.NewClient(cfg.URL, log)
	client.EmailSuffix = cfg.EmailSuffix
	return client
}

func credentials(cfg *config.Config, opts *options) (docsdb.Credentials, error) {
	if opts.username == "" {
		return docsdb.Credentials{}, errors.New("required flag \"username\" not set")
	}

	password := cfg.Password
	if opts.askPassword {
		var err error
		password, err = readPassword("DoC's DB password:")
		if err != nil {
			return docsdb.Credentials{}, err
		}
	}
	if password == "" {
		return docsdb.Credentials{}, errPasswordRequired
	}
	return docsdb.Credentials{Login: opts.username, Password: password}, nil
}

// session parses the course and term and logs in. Course and term are checked
// first so typos fail before any request is made.
func session(cfg *config.Config, opts *options, log logrus.FieldLogger) (*docsdb.Client, docsdb.Credentials, docsdb.Course, docsdb.Term, error) {
	var creds docsdb.Credentials

	course, err := docsdb.ParseCourse(opts.course)
	if err != nil {
		return nil, creds, docsdb.Course{}, docsdb.Term{}, err
	}
	term, err := docsdb.ParseTerm(opts.term)
	if err != nil {
		return nil, creds, course, docsdb.Term{}, err
	}

	creds, err = credentials(cfg, opts)
	if err != nil {
		return nil, creds, course, term, err
	}

	client := newClient(cfg, log)
	creds, err = client.Login(creds)
	if err != nil {
		return nil, creds, course, term, err
	}
	return client, creds, course, term, nil
}

func runSync(cfg *config.Config, opts *options, out io.Writer) error {
	log := newLogger(cfg.LogLevel, opts.verbose)
	fmt.Fprintln(out, renderBanner(version))

	client, creds, course, term, err := session(cfg, opts, log)
	if err != nil {
		return err
	}

	roster, err := client.FetchRoster(creds, course, term)
	if err != nil {
		return err
	}

	scores, err := marks.Load(opts.csvPath, roster, marks.Columns{CCID: opts.ccidColumn, Score: opts.scoreColumn})
	if err != nil {
		return err
	}
	log.WithField("scores", len(scores)).Info("loaded spreadsheet")

	sheet, err := client.FetchMarksheet(creds, course, term, opts.assignment)
	if err != nil {
		return err
	}

	if !opts.submit {
		fmt.Fprintln(out, renderDryRunNotice())
	}

	changes := sheet.Overlay(scores)
	for _, id := range sheet.Missing(scores) {
		log.WithField("student", id).Warn("student has a score but is not on the marksheet, skipped")
	}

	fmt.Fprintln(out, renderChanges(changes))
	fmt.Fprintln(out, renderDump(sheet))

	if err := client.Submit(creds, course, term, sheet, opts.submit); err != nil {
		return err
	}

	if opts.submit {
		fmt.Fprintln(out, renderSubmitted(len(changes)))
	} else {
		fmt.Fprintln(out, renderNothingSubmitted())
	}
	return nil
}

func runRoster(cfg *config.Config, opts *options, out io.Writer) error {
	log := newLogger(cfg.LogLevel, opts.verbose)

	client, creds, course, term, err := session(cfg, opts, log)
	if err != nil {
		return err
	}

	roster, err := client.FetchRoster(creds, course, term)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, renderRoster(roster))
	return nil
}

package docsdb_test

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/feelsunbreeze/docsdb_marks/internal/docsdb"
	"github.com/feelsunbreeze/docsdb_marks/internal/docsdb/docsdbtest"
	"github.com/sirupsen/logrus"
)

var (
	testCourse = docsdb.Course{Abbrev: "CMPUT", Number: "174"}
	testTerm   = docsdb.Term{Season: "Fall", Year: "2019"}
	testCreds  = docsdb.Credentials{Login: "ta1", Password: "secret"}
)

func newTestClient(t *testing.T) (*docsdb.Client, *docsdbtest.Server) {
	t.Helper()
	srv := docsdbtest.NewServer()
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)
	return docsdb.NewClient(srv.BaseURL(), log), srv
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		creds   docsdb.Credentials
		want    docsdb.Credentials
		wantErr error
	}{
		{
			name:  "rotated credentials are returned",
			page:  docsdbtest.LoginPage,
			creds: testCreds,
			want:  docsdb.Credentials{Login: "ta1", Password: "rotated-secret"},
		},
		{
			name:  "missing echo keeps originals",
			page:  `<html><body><p>Welcome</p></body></html>`,
			creds: testCreds,
			want:  testCreds,
		},
		{
			name:  "empty echo keeps originals",
			page:  `<html><body><input name="oracle.login" value=""><input name="oracle.password"></body></html>`,
			creds: testCreds,
			want:  testCreds,
		},
		{
			name:    "server rejects login",
			page:    docsdbtest.LoginFailedPage,
			creds:   testCreds,
			wantErr: docsdb.ErrLogin,
		},
		{
			name:    "blank password",
			page:    docsdbtest.LoginPage,
			creds:   docsdb.Credentials{Login: "ta1"},
			wantErr: docsdb.ErrLogin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, srv := newTestClient(t)
			srv.Login = tt.page

			got, err := client.Login(tt.creds)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Login() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Login() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Login() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoginPostsCredentials(t *testing.T) {
	client, srv := newTestClient(t)

	if _, err := client.Login(testCreds); err != nil {
		t.Fatalf("Login() unexpected error: %v", err)
	}

	req, ok := srv.Last("/login.cgi")
	if !ok {
		t.Fatal("no request reached login.cgi")
	}
	if req.Fields["oracle.login"] != "ta1" || req.Fields["oracle.password"] != "secret" {
		t.Errorf("login fields = %v", req.Fields)
	}
}

func TestNonOKStatusIsConnectionError(t *testing.T) {
	client, srv := newTestClient(t)
	srv.Status = http.StatusInternalServerError

	_, err := client.Login(testCreds)
	if !errors.Is(err, docsdb.ErrConnection) {
		t.Fatalf("Login() error = %v, want ErrConnection", err)
	}
	if docsdb.CodeOf(err) != docsdb.ErrNetworkIssue {
		t.Errorf("CodeOf() = %v, want ErrNetworkIssue", docsdb.CodeOf(err))
	}
}

func TestFetchRoster(t *testing.T) {
	client, srv := newTestClient(t)

	roster, err := client.FetchRoster(testCreds, testCourse, testTerm)
	if err != nil {
		t.Fatalf("FetchRoster() unexpected error: %v", err)
	}

	want := docsdb.Roster{"jdoe": 1001, "asmith": 1002, "bwong": 1003}
	if len(roster) != len(want) {
		t.Fatalf("FetchRoster() = %v, want %v", roster, want)
	}
	for ccid, id := range want {
		if roster[ccid] != id {
			t.Errorf("roster[%q] = %d, want %d", ccid, roster[ccid], id)
		}
	}

	req, _ := srv.Last("/classlist2.cgi")
	checks := map[string]string{
		"season":    "Fall",
		"year":      "2019",
		"abbrev":    "CMPUT",
		"coursenum": "174",
		"secttype":  "All Lectures",
		"list_type": "Registered Students Only",
		"id":        "on",
		"ccid":      "on",
	}
	for name, value := range checks {
		if req.Fields[name] != value {
			t.Errorf("field %s = %q, want %q", name, req.Fields[name], value)
		}
	}
}

func TestFetchRosterBadPages(t *testing.T) {
	tests := []struct {
		name string
		page string
	}{
		{"single table", `<html><body><table><tr><td>1</td><td>a@ualberta.ca</td></tr></table></body></html>`},
		{"non numeric id", `<html><body><table></table><table><tr><td>abc</td><td>a@ualberta.ca</td></tr></table></body></html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, srv := newTestClient(t)
			srv.ClassList = tt.page

			_, err := client.FetchRoster(testCreds, testCourse, testTerm)
			if !errors.Is(err, docsdb.ErrParse) {
				t.Fatalf("FetchRoster() error = %v, want ErrParse", err)
			}
		})
	}
}

func TestFetchMarksheet(t *testing.T) {
	client, srv := newTestClient(t)

	sheet, err := client.FetchMarksheet(testCreds, testCourse, testTerm, "Assignment 1")
	if err != nil {
		t.Fatalf("FetchMarksheet() unexpected error: %v", err)
	}

	if srv.Count("/entersection2.cgi") != 2 {
		t.Fatalf("entersection2.cgi hit %d times, want 2", srv.Count("/entersection2.cgi"))
	}
	first := srv.Requests()[0]
	if first.Path != "/entersection2.cgi" {
		t.Fatalf("first request went to %s", first.Path)
	}
	firstWant := map[string]string{
		".submit":   "Get List",
		"order_by":  "Student ID",
		"secttype":  "All Sections",
		"sectnum":   "",
		"sectpre":   "",
		"type":      "",
		"num":       "",
		"season":    "Fall",
		"year":      "2019",
		"abbrev":    "CMPUT",
		"coursenum": "174",
	}
	for name, value := range firstWant {
		if got, ok := first.Fields[name]; !ok || got != value {
			t.Errorf("first request field %s = %q, want %q", name, got, value)
		}
	}
	if _, ok := first.Fields["term"]; ok {
		t.Errorf("first request already carries a term token")
	}
	req, _ := srv.Last("/entersection2.cgi")
	if req.Fields["term"] != "1690-CMPUT-174" {
		t.Errorf("term = %q, want session token", req.Fields["term"])
	}
	if req.Fields["assignment"] != "Assignment;1" {
		t.Errorf("assignment = %q, want %q", req.Fields["assignment"], "Assignment;1")
	}

	want := map[int]docsdb.MarkRow{
		1001: {Index: 0, StudentID: 1001, Mark: "80", OldMark: "80"},
		1002: {Index: 1, StudentID: 1002},
		1003: {Index: 2, StudentID: 1003, Mark: "55", OldMark: "55", EAFlag: "Y", OldEAFlag: "Y"},
	}
	if len(sheet.Rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(sheet.Rows), len(want))
	}
	for id, row := range want {
		got, ok := sheet.Rows[id]
		if !ok {
			t.Errorf("row for %d missing", id)
			continue
		}
		if *got != row {
			t.Errorf("row %d = %+v, want %+v", id, *got, row)
		}
	}

	hidden := map[string]string{"earole": "TA", "maxmark": "100", "dbarole": "ta", "secretnum": "8841", "bonus": "0"}
	for name, value := range hidden {
		if sheet.Hidden[name] != value {
			t.Errorf("hidden %s = %q, want %q", name, sheet.Hidden[name], value)
		}
	}
}

func TestFetchMarksheetWithoutToken(t *testing.T) {
	client, srv := newTestClient(t)
	srv.Section = `<html><body><p>No sections.</p></body></html>`

	_, err := client.FetchMarksheet(testCreds, testCourse, testTerm, "Assignment 1")
	if !errors.Is(err, docsdb.ErrParse) {
		t.Fatalf("FetchMarksheet() error = %v, want ErrParse", err)
	}
	if srv.Count("/entersection2.cgi") != 1 {
		t.Errorf("second marksheet request sent without a token")
	}
}

func TestParseMarksheetCheckedFlagWithoutValue(t *testing.T) {
	client, srv := newTestClient(t)
	srv.Marksheet = `<html><body>
<input type="hidden" name="id0" value="1001">
<input type="text" name="mark0" value="">
<input type="checkbox" name="eaflag0" checked>
<input type="hidden" name="id1" value="1002">
<input type="checkbox" name="eaflag1">
</body></html>`

	sheet, err := client.FetchMarksheet(testCreds, testCourse, testTerm, "Assignment 1")
	if err != nil {
		t.Fatalf("FetchMarksheet() unexpected error: %v", err)
	}
	if got := sheet.Rows[1001].EAFlag; got != "on" {
		t.Errorf("checked flag = %q, want on", got)
	}
	if got := sheet.Rows[1002].EAFlag; got != "" {
		t.Errorf("unchecked flag = %q, want empty", got)
	}
}

func TestParseMarksheetRowWithoutID(t *testing.T) {
	client, srv := newTestClient(t)
	srv.Marksheet = `<html><body><input name="mark4" value="10"></body></html>`

	_, err := client.FetchMarksheet(testCreds, testCourse, testTerm, "Lab 2")
	if !errors.Is(err, docsdb.ErrParse) {
		t.Fatalf("FetchMarksheet() error = %v, want ErrParse", err)
	}
}

func TestSubmit(t *testing.T) {
	tests := []struct {
		name      string
		commit    bool
		page      string
		wantPosts int
		wantErr   error
	}{
		{name: "dry run sends nothing", commit: false, page: docsdbtest.SubmitFailedPage, wantPosts: 0},
		{name: "confirmed", commit: true, page: docsdbtest.SubmitOKPage, wantPosts: 1},
		{name: "not confirmed", commit: true, page: docsdbtest.SubmitFailedPage, wantPosts: 1, wantErr: docsdb.ErrUnconfirmed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, srv := newTestClient(t)
			srv.Submit = tt.page

			sheet, err := client.FetchMarksheet(testCreds, testCourse, testTerm, "Assignment 1")
			if err != nil {
				t.Fatalf("FetchMarksheet() unexpected error: %v", err)
			}
			sheet.Overlay(docsdb.Scores{1001: "85"})

			err = client.Submit(testCreds, testCourse, testTerm, sheet, tt.commit)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Submit() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Submit() unexpected error: %v", err)
			}

			if got := srv.Count("/entersection3.cgi"); got != tt.wantPosts {
				t.Fatalf("entersection3.cgi hit %d times, want %d", got, tt.wantPosts)
			}
			if tt.wantPosts == 0 {
				return
			}

			req, _ := srv.Last("/entersection3.cgi")
			want := map[string]string{
				".submit":    "Enter Marks",
				"secttype":   "All Sections",
				"maxmark":    "100",
				"id0":        "1001",
				"mark0":      "85",
				"oldmark0":   "80",
				"eaflag0":    "",
				"id2":        "1003",
				"mark2":      "55",
				"eaflag2":    "Y",
				"oldeaflag2": "Y",
			}
			for name, value := range want {
				got, ok := req.Fields[name]
				if !ok || got != value {
					t.Errorf("field %s = %q, want %q", name, got, value)
				}
			}
		})
	}
}

func TestParseRosterStripsSuffix(t *testing.T) {
	tests := []struct {
		name   string
		email  string
		suffix string
		want   string
	}{
		{"exact domain", "x@example.edu", "@example.edu", "x"},
		{"mixed case domain", "jdoe@UAlberta.ca", "@ualberta.ca", "jdoe"},
		{"bare ccid", "jdoe", "@ualberta.ca", "jdoe"},
		{"other domain", "jdoe@gmail.com", "@ualberta.ca", "jdoe@gmail.com"},
		{"no suffix configured", "jdoe@ualberta.ca", "", "jdoe@ualberta.ca"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := `<table></table><table><tr><td>7</td><td>` + tt.email + `</td></tr></table>`
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
			if err != nil {
				t.Fatal(err)
			}

			roster, err := docsdb.ParseRoster(doc, tt.suffix)
			if err != nil {
				t.Fatalf("ParseRoster() unexpected error: %v", err)
			}
			if id, ok := roster[tt.want]; !ok || id != 7 {
				t.Errorf("roster = %v, want %s -> 7", roster, tt.want)
			}
		})
	}
}

func TestFetchRosterMixedCaseDomain(t *testing.T) {
	client, srv := newTestClient(t)
	srv.ClassList = strings.ReplaceAll(docsdbtest.ClassListPage, "@ualberta.ca", "@UAlberta.ca")

	roster, err := client.FetchRoster(testCreds, testCourse, testTerm)
	if err != nil {
		t.Fatalf("FetchRoster() unexpected error: %v", err)
	}
	if roster["jdoe"] != 1001 {
		t.Errorf("roster = %v, want jdoe -> 1001", roster)
	}
}

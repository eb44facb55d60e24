package docsdb

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

const DEFAULT_URL string = "https://docsdb.cs.ualberta.ca/Prod/"
const DEFAULT_EMAIL_SUFFIX string = "@ualberta.ca"

const LOGIN_PATH string = "login.cgi"
const CLASSLIST_PATH string = "classlist2.cgi"
const ENTER_SECTION_PATH string = "entersection2.cgi"
const SUBMIT_SECTION_PATH string = "entersection3.cgi"

const LOGIN_FAILED_MARKER string = "Unable to login."
const SUBMIT_OK_MARKER string = "Entering Marks Complete"

var hiddenFieldNames = []string{"earole", "maxmark", "dbarole", "secretnum", "bonus"}

var rowInputPattern = regexp.MustCompile(`^(id|mark|oldmark|eaflag|oldeaflag)([0-9]+)$`)

type Client struct {
	BaseURL     string
	EmailSuffix string
	HTTP        *http.Client
	Log         logrus.FieldLogger
}

func NewClient(baseURL string, log logrus.FieldLogger) *Client {
	if baseURL == "" {
		baseURL = DEFAULT_URL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		BaseURL:     baseURL,
		EmailSuffix: DEFAULT_EMAIL_SUFFIX,
		HTTP:        &http.Client{},
		Log:         log,
	}
}

// post sends fields as a multipart form, the encoding DoC's DB scripts expect,
// and returns the response body.
func (c *Client) post(path string, fields map[string]string) (string, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, name := range names {
		if err := w.WriteField(name, fields[name]); err != nil {
			return "", fmt.Errorf("failed to encode field %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to encode form: %w", err)
	}

	c.Log.WithFields(logrus.Fields{"path": path, "fields": len(names)}).Debug("posting form")

	req, err := http.NewRequest("POST", c.BaseURL+path, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrConnection, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s returned status %d", ErrConnection, path, resp.StatusCode)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read %s response: %v", ErrConnection, path, err)
	}
	return string(bodyBytes), nil
}

func sessionFields(creds Credentials, course Course, term Term) map[string]string {
	return map[string]string{
		"oracle.login":    creds.Login,
		"oracle.password": creds.Password,
		"season":          term.Season,
		"year":            term.Year,
		"abbrev":          course.Abbrev,
		"coursenum":       course.Number,
	}
}

// Login checks the credentials and returns the pair the server wants to see on
// later requests. The server may echo back replacement values; anything it
// leaves out keeps its original value.
func (c *Client) Login(creds Credentials) (Credentials, error) {
	if creds.Login == "" || creds.Password == "" {
		return Credentials{}, fmt.Errorf("%w: username and password are required", ErrLogin)
	}

	body, err := c.post(LOGIN_PATH, map[string]string{
		"oracle.login":    creds.Login,
		"oracle.password": creds.Password,
	})
	if err != nil {
		return Credentials{}, err
	}

	if strings.Contains(body, LOGIN_FAILED_MARKER) {
		return Credentials{}, fmt.Errorf("%w: the server rejected user %s", ErrLogin, creds.Login)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: failed to parse login HTML: %v", ErrParse, err)
	}

	rotated := creds
	if val, exists := doc.Find("input[name='oracle.login']").First().Attr("value"); exists && val != "" {
		rotated.Login = val
	}
	if val, exists := doc.Find("input[name='oracle.password']").First().Attr("value"); exists && val != "" {
		rotated.Password = val
	}

	c.Log.WithField("user", rotated.Login).Info("logged in to DoC's DB")
	return rotated, nil
}

func (c *Client) FetchRoster(creds Credentials, course Course, term Term) (Roster, error) {
	fields := sessionFields(creds, course, term)
	fields["secttype"] = "All Lectures"
	fields["sectnum"] = ""
	fields["sectpre"] = ""
	fields["list_type"] = "Registered Students Only"
	fields["order_by"] = "Student ID"
	fields["id"] = "on"
	fields["ccid"] = "on"

	body, err := c.post(CLASSLIST_PATH, fields)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse class list HTML: %v", ErrParse, err)
	}

	roster, err := parseRoster(doc, c.EmailSuffix)
	if err != nil {
		return nil, err
	}

	c.Log.WithFields(logrus.Fields{"course": course.String(), "term": term.String(), "students": len(roster)}).Info("resolved class list")
	return roster, nil
}

// parseRoster reads the (student id, email) pairs out of the second table of
// the class list. Header rows only carry th cells and are skipped.
func parseRoster(doc *goquery.Document, suffix string) (Roster, error) {
	tables := doc.Find("table")
	if tables.Length() < 2 {
		return nil, fmt.Errorf("%w: class list table not found", ErrParse)
	}

	roster := Roster{}
	var parseErr error
	tables.Eq(1).Find("tr").EachWithBreak(func(rowIndex int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if cells.Length() != 2 {
			return true
		}

		idText := strings.TrimSpace(cells.Eq(0).Text())
		id, err := strconv.Atoi(idText)
		if err != nil {
			parseErr = fmt.Errorf("%w: class list row %d has student id %q", ErrParse, rowIndex, idText)
			return false
		}

		roster[trimEmailSuffix(strings.TrimSpace(cells.Eq(1).Text()), suffix)] = id
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return roster, nil
}

// trimEmailSuffix cuts the domain off an email address. Domains are case
// insensitive, so "jdoe@UAlberta.ca" yields "jdoe" as well.
func trimEmailSuffix(email, suffix string) string {
	if suffix == "" || len(email) < len(suffix) {
		return email
	}
	if strings.EqualFold(email[len(email)-len(suffix):], suffix) {
		return email[:len(email)-len(suffix)]
	}
	return email
}

func marksheetFields(creds Credentials, course Course, term Term) map[string]string {
	fields := sessionFields(creds, course, term)
	fields["order_by"] = "Student ID"
	fields[".submit"] = "Get List"
	fields["secttype"] = "All Sections"
	fields["sectnum"] = ""
	return fields
}

// FetchMarksheet loads the mark-entry form for one assignment. The first
// request only yields the hidden course-session token ("term") that the
// second request needs.
func (c *Client) FetchMarksheet(creds Credentials, course Course, term Term, assignment string) (*Marksheet, error) {
	fields := marksheetFields(creds, course, term)
	fields["sectpre"] = ""
	fields["type"] = ""
	fields["num"] = ""

	body, err := c.post(ENTER_SECTION_PATH, fields)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse section HTML: %v", ErrParse, err)
	}

	token, exists := doc.Find("input[name='term']").First().Attr("value")
	if !exists || token == "" {
		return nil, fmt.Errorf("%w: course session token not found for %s %s", ErrParse, course, term)
	}
	c.Log.WithField("token", token).Debug("got course session token")

	fields = marksheetFields(creds, course, term)
	fields["term"] = token
	fields["assignment"] = strings.ReplaceAll(assignment, " ", ";")

	body, err = c.post(ENTER_SECTION_PATH, fields)
	if err != nil {
		return nil, err
	}

	doc, err = goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse marksheet HTML: %v", ErrParse, err)
	}

	sheet, err := parseMarksheet(doc)
	if err != nil {
		return nil, err
	}

	c.Log.WithFields(logrus.Fields{"assignment": assignment, "rows": len(sheet.Rows)}).Info("fetched marksheet")
	return sheet, nil
}

// parseMarksheet groups the id/mark/oldmark/eaflag/oldeaflag inputs by the
// index embedded in their names, so the order the server emits them in does
// not matter.
func parseMarksheet(doc *goquery.Document) (*Marksheet, error) {
	groups := map[int]map[string]string{}

	doc.Find("input[name]").Each(func(i int, sel *goquery.Selection) {
		name, _ := sel.Attr("name")
		match := rowInputPattern.FindStringSubmatch(name)
		if match == nil {
			return
		}
		index, err := strconv.Atoi(match[2])
		if err != nil {
			return
		}

		value, hasValue := sel.Attr("value")
		if match[1] == "eaflag" {
			_, checked := sel.Attr("checked")
			switch {
			case !checked:
				value = ""
			case !hasValue:
				// browsers post "on" for a checked box without a value
				value = "on"
			}
		}

		if groups[index] == nil {
			groups[index] = map[string]string{}
		}
		groups[index][match[1]] = value
	})

	sheet := &Marksheet{
		Hidden: map[string]string{},
		Rows:   map[int]*MarkRow{},
	}

	for index, group := range groups {
		idText, ok := group["id"]
		if !ok {
			return nil, fmt.Errorf("%w: marksheet row %d has no student id", ErrParse, index)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idText))
		if err != nil {
			return nil, fmt.Errorf("%w: marksheet row %d has student id %q", ErrParse, index, idText)
		}
		sheet.Rows[id] = &MarkRow{
			Index:     index,
			StudentID: id,
			Mark:      group["mark"],
			OldMark:   group["oldmark"],
			EAFlag:    group["eaflag"],
			OldEAFlag: group["oldeaflag"],
		}
	}

	for _, name := range hiddenFieldNames {
		if val, exists := doc.Find(fmt.Sprintf("input[name='%s']", name)).First().Attr("value"); exists {
			sheet.Hidden[name] = val
		}
	}

	return sheet, nil
}

// Submit posts the completed marksheet. Unless commit is set nothing is sent
// and the call succeeds, which is how dry runs work.
func (c *Client) Submit(creds Credentials, course Course, term Term, sheet *Marksheet, commit bool) error {
	fields := sessionFields(creds, course, term)
	fields[".submit"] = "Enter Marks"
	fields["secttype"] = "All Sections"
	fields["sectnum"] = ""
	for name, value := range sheet.Fields() {
		fields[name] = value
	}

	if !commit {
		c.Log.WithField("fields", len(fields)).Info("dry run, marksheet not submitted")
		return nil
	}

	body, err := c.post(SUBMIT_SECTION_PATH, fields)
	if err != nil {
		return err
	}

	if !strings.Contains(body, SUBMIT_OK_MARKER) {
		return fmt.Errorf("%w: response did not contain %q", ErrUnconfirmed, SUBMIT_OK_MARKER)
	}

	c.Log.WithField("rows", len(sheet.Rows)).Info("marksheet submitted")
	return nil
}

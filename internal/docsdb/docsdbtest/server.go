// Package docsdbtest runs a fake DoC's DB that serves canned pages and records
// every form posted to it.
package docsdbtest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

const LoginPage = `<html><body>
<form action="main.cgi" method="post">
<input type="hidden" name="oracle.login" value="ta1">
<input type="hidden" name="oracle.password" value="rotated-secret">
</form>
</body></html>`

const LoginFailedPage = `<html><body><p>Unable to login. Check your user name and password.</p></body></html>`

const ClassListPage = `<html><body>
<table><tr><td>CMPUT 174 Fall 2019</td></tr></table>
<table>
<tr><th>Student ID</th><th>CCID</th></tr>
<tr><td> 1001 </td><td>jdoe@ualberta.ca</td></tr>
<tr><td>1002</td><td>asmith@ualberta.ca</td></tr>
<tr><td>1003</td><td>bwong@ualberta.ca</td></tr>
</table>
</body></html>`

const SectionPage = `<html><body><form>
<input type="hidden" name="term" value="1690-CMPUT-174">
<select name="assignment"><option value="Assignment;1">Assignment 1</option></select>
</form></body></html>`

// MarksheetPage has the inputs of student 1002 split around those of 1003 so
// that parsers relying on input order get it wrong.
const MarksheetPage = `<html><body><form action="entersection3.cgi">
<input type="hidden" name="earole" value="TA">
<input type="hidden" name="maxmark" value="100">
<input type="hidden" name="dbarole" value="ta">
<input type="hidden" name="secretnum" value="8841">
<input type="hidden" name="bonus" value="0">
<table>
<tr><td><input type="hidden" name="id0" value="1001"></td>
<td><input type="text" name="mark0" value="80"><input type="hidden" name="oldmark0" value="80"></td>
<td><input type="checkbox" name="eaflag0" value="Y"><input type="hidden" name="oldeaflag0" value=""></td></tr>
<tr><td><input type="hidden" name="id1" value="1002"></td>
<td><input type="text" name="mark1" value=""></td>
<tr><td><input type="hidden" name="id2" value="1003"></td>
<td><input type="text" name="mark2" value="55"><input type="hidden" name="oldmark2" value="55"></td>
<td><input type="checkbox" name="eaflag2" value="Y" checked><input type="hidden" name="oldeaflag2" value="Y"></td></tr>
<td><input type="hidden" name="oldmark1" value=""></td>
<td><input type="checkbox" name="eaflag1" value="Y"><input type="hidden" name="oldeaflag1" value=""></td></tr>
</table>
<input type="submit" name=".submit" value="Enter Marks">
</form></body></html>`

const SubmitOKPage = `<html><body><h2>Entering Marks Complete</h2></body></html>`

const SubmitFailedPage = `<html><body><h2>Error: marks out of range</h2></body></html>`

type Request struct {
	Path   string
	Fields map[string]string
}

type Server struct {
	*httptest.Server

	mu       sync.Mutex
	requests []Request

	// Pages served per endpoint; entersection2.cgi serves MarksheetPage once
	// a session token is posted and SectionPage before.
	Login     string
	ClassList string
	Section   string
	Marksheet string
	Submit    string

	// Status overrides the response code of every endpoint when non-zero.
	Status int
}

func NewServer() *Server {
	s := &Server{
		Login:     LoginPage,
		ClassList: ClassListPage,
		Section:   SectionPage,
		Marksheet: MarksheetPage,
		Submit:    SubmitOKPage,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// BaseURL is the value to hand to docsdb.NewClient.
func (s *Server) BaseURL() string {
	return s.URL + "/"
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	fields := map[string]string{}
	if err := r.ParseMultipartForm(1 << 20); err == nil {
		for name, values := range r.MultipartForm.Value {
			if len(values) > 0 {
				fields[name] = values[0]
			}
		}
	}

	s.mu.Lock()
	s.requests = append(s.requests, Request{Path: r.URL.Path, Fields: fields})
	status := s.Status
	s.mu.Unlock()

	if r.Method != http.MethodPost || !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}

	var page string
	switch r.URL.Path {
	case "/login.cgi":
		page = s.Login
	case "/classlist2.cgi":
		page = s.ClassList
	case "/entersection2.cgi":
		if fields["term"] != "" {
			page = s.Marksheet
		} else {
			page = s.Section
		}
	case "/entersection3.cgi":
		page = s.Submit
	default:
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(page))
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many requests hit path, e.g. "/entersection3.cgi".
func (s *Server) Count(path string) int {
	n := 0
	for _, req := range s.Requests() {
		if req.Path == path {
			n++
		}
	}
	return n
}

// Last returns the most recent request to path.
func (s *Server) Last(path string) (Request, bool) {
	reqs := s.Requests()
	for i := len(reqs) - 1; i >= 0; i-- {
		if reqs[i].Path == path {
			return reqs[i], true
		}
	}
	return Request{}, false
}

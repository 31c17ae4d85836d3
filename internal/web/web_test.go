package web

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/erazemk/nettrac/internal/auth"
	"github.com/erazemk/nettrac/internal/config"
	"github.com/erazemk/nettrac/internal/db"
	"github.com/erazemk/nettrac/internal/model"
	"github.com/erazemk/nettrac/internal/ratelimit"
	"github.com/erazemk/nettrac/internal/store"
)

const testJWTSecret = "test-secret"

func setup(t *testing.T) (*httptest.Server, *storeHandle) {
	t.Helper()
	database := db.NewTestDB(t)
	router, err := NewRouter(database, testJWTSecret, config.Default(), ratelimit.New(0, 0))
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	ctx := context.Background()
	hash, _ := auth.HashPassword("password")
	store.CreateUser(ctx, database, "t2", hash, model.RoleSubmitter)
	store.CreateUser(ctx, database, "t3", hash, model.RoleApprover)

	return server, &storeHandle{database}
}

// client returns an HTTP client logged in as username. Redirects are not
// followed so tests can inspect them.
func client(t *testing.T, server *httptest.Server, username string) *http.Client {
	t.Helper()
	jar, _ := cookiejar.New(nil)
	c := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := c.PostForm(server.URL+"/login", url.Values{"username": {username}, "password": {"password"}})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
		t.Fatalf("login as %s: status %d location %q", username, resp.StatusCode, resp.Header.Get("Location"))
	}
	return c
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return string(b)
}

func TestLoginRequired(t *testing.T) {
	server, _ := setup(t)
	c := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	resp, err := c.Get(server.URL + "/records")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Errorf("expected redirect to /login, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestLoginWrongPassword(t *testing.T) {
	server, _ := setup(t)

	resp, err := http.PostForm(server.URL+"/login", url.Values{"username": {"t2"}, "password": {"nope"}})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(body(t, resp), "Wrong username or password") {
		t.Error("expected error message on login page")
	}
}

func TestRecordsPageSearch(t *testing.T) {
	server, st := setup(t)
	st.create(t, "SN-1", "Vendor1")
	st.create(t, "SN-2", "Other")
	c := client(t, server, "t2")

	resp, err := c.Get(server.URL + "/records?q=ven")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	page := body(t, resp)
	if !strings.Contains(page, "SN-1") || strings.Contains(page, "SN-2") {
		t.Errorf("expected only SN-1 in search results")
	}
	if !strings.Contains(page, "Request deletion of selected") {
		t.Error("expected submitter wording on delete button")
	}
}

func TestCreateAndEditRecord(t *testing.T) {
	server, st := setup(t)
	c := client(t, server, "t2")

	resp, err := c.PostForm(server.URL+"/records/new", url.Values{
		"vendor": {"Cisco"}, "serial_number": {"SN-1"}, "date_received": {"2024-09-01"}, "ready": {"1"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("create: expected redirect, got %d", resp.StatusCode)
	}

	rec := st.bySerial(t, "SN-1")
	if !rec.Ready || rec.DateReceived == nil || rec.CreatedBy != "t2" {
		t.Errorf("unexpected record: %+v", rec)
	}

	// Duplicate serial re-renders the form.
	resp, _ = c.PostForm(server.URL+"/records/new", url.Values{"vendor": {"X"}, "serial_number": {"SN-1"}})
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(body(t, resp), "already exists") {
		t.Error("expected duplicate serial error")
	}

	editURL := fmt.Sprintf("%s/records/%d", server.URL, rec.ID)
	resp, _ = c.PostForm(editURL, url.Values{
		"vendor": {"Cisco"}, "serial_number": {"SN-1"}, "host_name": {"sw1"}, "version": {"1"},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("edit: expected redirect, got %d", resp.StatusCode)
	}
	if got := st.bySerial(t, "SN-1"); got.HostName != "sw1" || got.ModifiedBy != "t2" {
		t.Errorf("edit not applied: %+v", got)
	}

	// Stale version.
	resp, _ = c.PostForm(editURL, url.Values{"vendor": {"Cisco"}, "serial_number": {"SN-1"}, "version": {"1"}})
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(body(t, resp), "Someone else changed") {
		t.Error("expected conflict message for stale version")
	}
}

func TestSubmitterDeleteThenApproverResolves(t *testing.T) {
	server, st := setup(t)
	a := st.create(t, "SN-1", "Cisco")
	b := st.create(t, "SN-2", "Cisco")

	sub := client(t, server, "t2")
	resp, _ := sub.PostForm(server.URL+"/records/delete", url.Values{"id": {fmt.Sprint(a.ID), fmt.Sprint(b.ID), "999"}})
	resp.Body.Close()
	if loc := resp.Header.Get("Location"); !strings.Contains(loc, "msg=") {
		t.Errorf("expected success message in redirect, got %q", loc)
	}
	if !st.get(t, a.ID).PendingDeletion || !st.get(t, b.ID).PendingDeletion {
		t.Fatal("expected both records to be pending")
	}

	// Submitters cannot open the approval page.
	resp, _ = sub.Get(server.URL + "/deletions")
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for submitter, got %d", resp.StatusCode)
	}

	appr := client(t, server, "t3")
	resp, _ = appr.Get(server.URL + "/deletions")
	if page := body(t, resp); !strings.Contains(page, "SN-1") || !strings.Contains(page, "SN-2") {
		t.Error("expected both pending records listed")
	}

	resp, _ = appr.PostForm(fmt.Sprintf("%s/deletions/%d/approve", server.URL, a.ID), nil)
	resp.Body.Close()
	resp, _ = appr.PostForm(fmt.Sprintf("%s/deletions/%d/deny", server.URL, b.ID), nil)
	resp.Body.Close()

	if st.get(t, a.ID) != nil {
		t.Error("expected approved record to be gone")
	}
	if got := st.get(t, b.ID); got == nil || got.PendingDeletion {
		t.Error("expected denied record to be live again")
	}
}

func TestImportUpload(t *testing.T) {
	server, st := setup(t)
	c := client(t, server, "t2")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("files", "batch.csv")
	fw.Write([]byte("SerialNumber,Vendor\nSN-1,Cisco\nSN-1,Juniper\n"))
	mw.Close()

	req, _ := http.NewRequest("POST", server.URL+"/records/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	page := body(t, resp)
	if !strings.Contains(page, "1 new record(s)") || !strings.Contains(page, "Duplicates (1)") {
		t.Errorf("expected import report in page")
	}
	if got := st.bySerial(t, "SN-1"); got == nil || got.Vendor != "Cisco" {
		t.Errorf("expected first row to win, got %+v", got)
	}
}

func TestExportDownload(t *testing.T) {
	server, st := setup(t)
	st.create(t, "SN-1", "Cisco")
	c := client(t, server, "t2")

	resp, err := c.Get(server.URL + "/export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv") {
		t.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(body(t, resp), "SN-1") {
		t.Error("expected record in export")
	}
}

func TestLogoutRevokesCookie(t *testing.T) {
	server, _ := setup(t)
	c := client(t, server, "t2")

	u, _ := url.Parse(server.URL)
	stolen := c.Jar.Cookies(u)

	resp, _ := c.PostForm(server.URL+"/logout", nil)
	resp.Body.Close()

	// Replaying the old cookie must not work either.
	other := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	req, _ := http.NewRequest("GET", server.URL+"/records", nil)
	for _, ck := range stolen {
		req.AddCookie(ck)
	}
	resp, _ = other.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("expected redirect to login after logout, got %d", resp.StatusCode)
	}
}

func TestSessionFollowsStoredRole(t *testing.T) {
	server, st := setup(t)
	ctx := context.Background()
	hash, _ := auth.HashPassword("password")
	b, err := store.CreateUser(ctx, st.db, "t3b", hash, model.RoleApprover)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	admin := client(t, server, "t3")
	demoted := client(t, server, "t3b")

	resp, err := admin.PostForm(fmt.Sprintf("%s/users/%d/role", server.URL, b.ID), url.Values{"role": {"submitter"}})
	if err != nil {
		t.Fatalf("demote: %v", err)
	}
	resp.Body.Close()

	rec := st.create(t, "SN-1", "Cisco")
	resp, err = demoted.PostForm(fmt.Sprintf("%s/records/%d/delete", server.URL, rec.ID), url.Values{})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	got := st.get(t, rec.ID)
	if got == nil || !got.PendingDeletion {
		t.Fatalf("expected demoted user's delete to only flag the record, got %+v", got)
	}

	resp, err = demoted.Get(server.URL + "/deletions")
	if err != nil {
		t.Fatalf("get deletions: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 on deletions page after demotion, got %d", resp.StatusCode)
	}

	// A deleted user's cookie is rejected.
	if err := store.DeleteUser(ctx, st.db, b.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	resp, err = demoted.Get(server.URL + "/records")
	if err != nil {
		t.Fatalf("get records: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Errorf("expected redirect to /login for deleted user, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

// storeHandle wraps the test database with record helpers.
type storeHandle struct {
	db *sql.DB
}

func (h *storeHandle) create(t *testing.T, serial, vendor string) *model.Record {
	t.Helper()
	r, err := store.CreateRecord(context.Background(), h.db, &model.Record{SerialNumber: serial, Vendor: vendor})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	return r
}

func (h *storeHandle) get(t *testing.T, id int64) *model.Record {
	t.Helper()
	r, err := store.GetRecord(context.Background(), h.db, id)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	return r
}

func (h *storeHandle) bySerial(t *testing.T, serial string) *model.Record {
	t.Helper()
	r, err := store.GetRecordBySerial(context.Background(), h.db, serial)
	if err != nil {
		t.Fatalf("GetRecordBySerial: %v", err)
	}
	if r == nil {
		t.Fatalf("record %s not found", serial)
	}
	return r
}

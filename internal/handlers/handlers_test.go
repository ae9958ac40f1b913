package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lyallcooper/legalreview/internal/config"
	"github.com/lyallcooper/legalreview/internal/db"
	"github.com/lyallcooper/legalreview/internal/scan"
	"github.com/lyallcooper/legalreview/internal/services"
	"github.com/lyallcooper/legalreview/internal/types"
	"github.com/lyallcooper/legalreview/internal/webfs"
)

type testEnv struct {
	server *httptest.Server
	client *http.Client
	clock  *clockwork.FakeClock
}

func newTestEnv(t *testing.T, disableCSRF bool, maxUpload int64) *testEnv {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	clock := clockwork.NewFakeClock()
	svc, err := services.NewDeepScan(database, services.DeepScanOptions{
		Checkpoints: scan.Checkpoints{0, 50, 100},
		Interval:    time.Second,
		Clock:       clock,
	})
	if err != nil {
		t.Fatalf("NewDeepScan failed: %v", err)
	}
	t.Cleanup(svc.Shutdown)

	cfg := &config.Config{MaxUploadSize: maxUpload, CheckpointInterval: time.Second}
	h, err := New(svc, cfg, webfs.FS, "test", disableCSRF)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	server := httptest.NewServer(h.Routes())
	t.Cleanup(server.Close)

	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &testEnv{server: server, client: client, clock: clock}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (e *testEnv) post(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := e.client.PostForm(e.server.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	resp.Body.Close()
	return resp
}

func (e *testEnv) upload(t *testing.T, files map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		part.Write([]byte(content))
	}
	mw.Close()

	resp, err := e.client.Post(e.server.URL+"/deep-scan/files", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	return resp
}

func (e *testEnv) status(t *testing.T) services.Status {
	t.Helper()
	resp, body := e.get(t, "/deep-scan/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var s services.Status
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return s
}

func (e *testEnv) cookie(t *testing.T, name string) string {
	t.Helper()
	u, _ := url.Parse(e.server.URL)
	for _, c := range e.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// runScan starts a scan and drives it to completion
func (e *testEnv) runScan(t *testing.T) {
	t.Helper()
	if resp := e.post(t, "/deep-scan/start", nil); resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("start = %d, want 303", resp.StatusCode)
	}

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := e.clock.BlockUntilContext(ctx, 1)
		cancel()
		if err != nil {
			t.Fatalf("step %d: scan never waited on the clock: %v", i, err)
		}
		e.clock.Advance(time.Second)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := e.status(t); s.State == scan.StateComplete {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("scan did not complete")
}

func redirectError(t *testing.T, resp *http.Response) string {
	t.Helper()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("bad Location: %v", err)
	}
	return loc.Query().Get("error")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name  string
		input int64
		want  string
	}{
		{"zero", 0, "0 B"},
		{"small bytes", 500, "500 B"},
		{"1 KB", 1000, "1.0 kB"},
		{"1.5 MB", 1500000, "1.5 MB"},
		{"negative", -5, "0 B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatBytes(tt.input); got != tt.want {
				t.Errorf("formatBytes(%d) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatTime(t *testing.T) {
	refTime := time.Date(2024, 6, 15, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"time.Time", refTime, "2024-06-15 14:30"},
		{"*time.Time", &refTime, "2024-06-15 14:30"},
		{"nil *time.Time", (*time.Time)(nil), "-"},
		{"int", 12345, "-"},
		{"nil", nil, "-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatTime(tt.input); got != tt.want {
				t.Errorf("formatTime(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTimeAgo(t *testing.T) {
	if got := timeAgo(time.Now().Add(-3 * time.Hour)); got != "3 hours ago" {
		t.Errorf("timeAgo(-3h) = %q", got)
	}
	if got := timeAgo((*time.Time)(nil)); got != "-" {
		t.Errorf("timeAgo(nil) = %q, want -", got)
	}
	if got := timeAgo("yesterday"); got != "-" {
		t.Errorf("timeAgo(string) = %q, want -", got)
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{0, "0%"},
		{87.75, "87.8%"},
		{87.74, "87.7%"},
		{99.99, "100%"},
		{42.5, "42.5%"},
		{100, "100%"},
	}
	for _, tt := range tests {
		if got := percent(tt.input); got != tt.want {
			t.Errorf("percent(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, true, 1<<20)

	resp, body := env.get(t, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, `"status":"ok"`) {
		t.Errorf("body = %s", body)
	}
	if env.cookie(t, sessionCookieName) != "" {
		t.Error("healthz should not create a session")
	}
}

func TestStaticFiles(t *testing.T) {
	env := newTestEnv(t, true, 1<<20)

	for _, path := range []string{"/static/style.css", "/static/app.js"} {
		if resp, _ := env.get(t, path); resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d", path, resp.StatusCode)
		}
	}
}

func TestSessionCookie(t *testing.T) {
	env := newTestEnv(t, true, 1<<20)

	env.get(t, "/deep-scan")
	first := env.cookie(t, sessionCookieName)
	if first == "" {
		t.Fatal("no session cookie set")
	}

	env.get(t, "/deep-scan")
	if got := env.cookie(t, sessionCookieName); got != first {
		t.Errorf("session changed: %s -> %s", first, got)
	}
}

func TestReviewPage(t *testing.T) {
	env := newTestEnv(t, true, 1<<20)

	resp, body := env.get(t, "/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	for _, want := range []string{"Project Overview &amp; Scope", "7 complete", "4 pending", "Quality Score"} {
		if !strings.Contains(body, want) {
			t.Errorf("review page missing %q", want)
		}
	}

	_, body = env.get(t, "/?q=payment")
	if !strings.Contains(body, "Payment Terms") {
		t.Error("search should keep Payment Terms")
	}
	if strings.Contains(body, "Insurance Requirements") {
		t.Error("search should drop unrelated sections")
	}
}

func TestDeepScanPage_Empty(t *testing.T) {
	env := newTestEnv(t, true, 1<<20)

	resp, body := env.get(t, "/deep-scan")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(body, `data-panel="empty"`) {
		t.Error("expected the empty panel")
	}
	if !strings.Contains(body, `class="active">Deep Scan`) {
		t.Error("Deep Scan nav item should be active")
	}
}

func TestCSRF(t *testing.T) {
	env := newTestEnv(t, false, 1<<20)

	if resp := env.post(t, "/deep-scan/cancel", nil); resp.StatusCode != http.StatusForbidden {
		t.Errorf("POST without token = %d, want 403", resp.StatusCode)
	}

	env.get(t, "/deep-scan")
	token := env.cookie(t, csrfCookieName)
	if token == "" {
		t.Fatal("no CSRF cookie set")
	}

	if resp := env.post(t, "/deep-scan/cancel", url.Values{csrfFormField: {"forged"}}); resp.StatusCode != http.StatusForbidden {
		t.Errorf("POST with wrong token = %d, want 403", resp.StatusCode)
	}

	resp := env.post(t, "/deep-scan/cancel", url.Values{csrfFormField: {token}})
	if got := redirectError(t, resp); got != "No scan is running" {
		t.Errorf("error = %q", got)
	}

	// Uploads carry the token in the query string
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("files", "msa.pdf")
	part.Write([]byte("%PDF"))
	mw.Close()
	resp, err := env.client.Post(env.server.URL+"/deep-scan/files?csrf_token="+url.QueryEscape(token), mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("upload with token = %d, want 303", resp.StatusCode)
	}
}

func TestCSRF_OtherSession(t *testing.T) {
	env := newTestEnv(t, false, 1<<20)
	env.get(t, "/deep-scan")
	token := env.cookie(t, csrfCookieName)

	// A second browser replaying the first one's token is rejected
	jar, _ := cookiejar.New(nil)
	other := &testEnv{server: env.server, client: &http.Client{Jar: jar}, clock: env.clock}
	other.get(t, "/deep-scan")
	u, _ := url.Parse(env.server.URL)
	jar.SetCookies(u, []*http.Cookie{{Name: csrfCookieName, Value: token}})

	resp := other.post(t, "/deep-scan/cancel", url.Values{csrfFormField: {token}})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("POST with another session's token = %d, want 403", resp.StatusCode)
	}
}

func TestCleanupCSRFTokens(t *testing.T) {
	csrfTokens.mu.Lock()
	csrfTokens.tokens["expired"] = csrfToken{session: "s1", expires: time.Now().Add(-time.Minute)}
	csrfTokens.tokens["live"] = csrfToken{session: "s1", expires: time.Now().Add(time.Hour)}
	csrfTokens.mu.Unlock()

	if n := CleanupCSRFTokens(); n < 1 {
		t.Errorf("cleaned %d tokens, want at least 1", n)
	}
	if csrfTokens.valid("expired", "s1") {
		t.Error("expired token still valid")
	}
	if !csrfTokens.valid("live", "s1") {
		t.Error("live token dropped")
	}
	if csrfTokens.valid("live", "s2") {
		t.Error("token valid for another session")
	}
}

func TestUploadFiles(t *testing.T) {
	env := newTestEnv(t, true, 1<<20)

	resp := env.upload(t, map[string]string{"msa.pdf": "contract", "setup.exe": "MZ"})
	if got := redirectError(t, resp); !strings.Contains(got, "setup.exe") {
		t.Errorf("error = %q, want setup.exe rejected", got)
	}

	s := env.status(t)
	if len(s.Files) != 1 || s.Files[0].Name != "msa.pdf" || s.Files[0].Size != int64(len("contract")) {
		t.Errorf("files = %+v, want msa.pdf only", s.Files)
	}

	_, body := env.get(t, "/deep-scan")
	if !strings.Contains(body, `data-panel="ready"`) {
		t.Error("expected the ready panel after upload")
	}
}

func TestUploadFiles_TooLarge(t *testing.T) {
	env := newTestEnv(t, true, 500)

	resp := env.upload(t, map[string]string{"big.pdf": strings.Repeat("x", 5000)})
	if got := redirectError(t, resp); !strings.HasPrefix(got, "Upload exceeds") {
		t.Errorf("error = %q", got)
	}
	if s := env.status(t); len(s.Files) != 0 {
		t.Errorf("files = %+v, want none", s.Files)
	}
}

func TestUploadFiles_NotMultipart(t *testing.T) {
	env := newTestEnv(t, true, 1<<20)

	if resp := env.post(t, "/deep-scan/files", url.Values{"files": {"msa.pdf"}}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRemoveFile(t *testing.T) {
	env := newTestEnv(t, true, 1<<20)
	env.upload(t, map[string]string{"msa.pdf": "a"})

	tests := []struct {
		path string
		want int
	}{
		{"/deep-scan/files/x/remove", http.StatusBadRequest},
		{"/deep-scan/files/5/remove", http.StatusNotFound},
		{"/deep-scan/files/0/remove", http.StatusSeeOther},
	}
	for _, tt := range tests {
		if resp := env.post(t, tt.path, nil); resp.StatusCode != tt.want {
			t.Errorf("POST %s = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}

	if s := env.status(t); len(s.Files) != 0 {
		t.Errorf("files = %+v, want none", s.Files)
	}
}

func TestUpdateConfig(t *testing.T) {
	env := newTestEnv(t, true, 1<<20)
	env.get(t, "/deep-scan")

	form := url.Values{}
	for _, f := range scan.Flags[1:] {
		form.Set(string(f), "on")
	}
	if resp := env.post(t, "/deep-scan/config", form); resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", resp.StatusCode)
	}

	s := env.status(t)
	if s.Config.Enabled(scan.Flags[0]) {
		t.Errorf("%s should be disabled", scan.Flags[0])
	}
	for _, f := range scan.Flags[1:] {
		if !s.Config.Enabled(f) {
			t.Errorf("%s should be enabled", f)
		}
	}
}

func TestStartScan_NoFiles(t *testing.T) {
	env := newTestEnv(t, true, 1<<20)

	resp := env.post(t, "/deep-scan/start", nil)
	if got := redirectError(t, resp); got == "" {
		t.Error("expected an error redirect")
	}
	if s := env.status(t); s.State != scan.StateIdle {
		t.Errorf("state = %s, want idle", s.State)
	}
}

func TestDeepScanFlow(t *testing.T) {
	env := newTestEnv(t, true, 1<<20)
	env.upload(t, map[string]string{"msa.pdf": "a", "sow.docx": "b"})

	// Nothing to export yet
	if resp, _ := env.get(t, "/deep-scan/export?format=csv"); resp.StatusCode != http.StatusConflict {
		t.Errorf("export before scan = %d, want 409", resp.StatusCode)
	}

	env.runScan(t)

	s := env.status(t)
	if s.Progress != 100 || s.ResultCount != 4 {
		t.Errorf("status = %+v, want progress 100 and 4 results", s)
	}

	_, body := env.get(t, "/deep-scan")
	if !strings.Contains(body, "Unlimited Liability Exposure") {
		t.Error("results page missing findings")
	}

	_, body = env.get(t, "/deep-scan?tab=critical")
	if strings.Contains(body, "Payment Terms Favor Vendor") {
		t.Error("critical tab should not list medium findings")
	}

	_, body = env.get(t, "/deep-scan?tab=summary")
	if !strings.Contains(body, "Key recommendations") {
		t.Error("summary tab missing recommendations")
	}

	resp, body := env.get(t, "/deep-scan/export?format=csv")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export = %d: %s", resp.StatusCode, body)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "deep-scan-report.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if lines := strings.Count(strings.TrimSpace(body), "\n") + 1; lines != 5 {
		t.Errorf("csv has %d lines, want header + 4", lines)
	}

	if resp, _ := env.get(t, "/deep-scan/export?format=xml"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("export xml = %d, want 400", resp.StatusCode)
	}
}

func TestStartScan_Reentry(t *testing.T) {
	env := newTestEnv(t, true, 1<<20)
	env.upload(t, map[string]string{"msa.pdf": "a"})

	if resp := env.post(t, "/deep-scan/start", nil); resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("start = %d", resp.StatusCode)
	}
	if got := redirectError(t, env.post(t, "/deep-scan/start", nil)); got != "A scan is already in progress" {
		t.Errorf("error = %q", got)
	}

	_, body := env.get(t, "/deep-scan")
	if !strings.Contains(body, `data-panel="scanning"`) {
		t.Error("expected the scanning panel")
	}

	if got := redirectError(t, env.post(t, "/deep-scan/cancel", nil)); got != "" {
		t.Errorf("cancel error = %q", got)
	}
	if s := env.status(t); s.State != scan.StateIdle || s.Progress != 0 {
		t.Errorf("after cancel: %+v", s)
	}
}

func TestDeepScanSSE_Idle(t *testing.T) {
	env := newTestEnv(t, true, 1<<20)

	resp, body := env.get(t, "/sse/deep-scan")
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(body, "event: progress") || !strings.Contains(body, `"status":"idle"`) {
		t.Errorf("missing initial progress event: %s", body)
	}
	if !strings.Contains(body, "event: complete") {
		t.Errorf("idle stream should end with complete: %s", body)
	}
}

// readEvent reads one server-sent event from r
func readEvent(t *testing.T, r *bufio.Reader) (event, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended before the event was complete: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if event != "" {
				return event, data
			}
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestDeepScanSSE_Running(t *testing.T) {
	env := newTestEnv(t, true, 1<<20)
	env.upload(t, map[string]string{"msa.pdf": "%PDF", "sow.docx": "docx"})
	if resp := env.post(t, "/deep-scan/start", nil); resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("start = %d, want 303", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/sse/deep-scan", nil)
	resp, err := env.client.Do(req)
	if err != nil {
		t.Fatalf("GET /sse/deep-scan: %v", err)
	}
	defer resp.Body.Close()
	stream := bufio.NewReader(resp.Body)

	// The initial state is sent after subscribing, so no later update is lost
	event, data := readEvent(t, stream)
	var initial types.ScanProgress
	if err := json.Unmarshal([]byte(data), &initial); err != nil {
		t.Fatalf("bad progress payload %q: %v", data, err)
	}
	if event != "progress" || initial.Status != "running" {
		t.Fatalf("initial event = %s %s", event, data)
	}

	for i := 0; i < 2; i++ {
		bctx, bcancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := env.clock.BlockUntilContext(bctx, 1)
		bcancel()
		if err != nil {
			t.Fatalf("step %d: scan never waited on the clock: %v", i, err)
		}
		env.clock.Advance(time.Second)
	}

	var updates []types.ScanProgress
	for {
		event, data := readEvent(t, stream)
		if event == "complete" {
			if !strings.Contains(data, `"status":"completed"`) {
				t.Errorf("complete event = %s", data)
			}
			break
		}
		if event != "progress" {
			t.Fatalf("unexpected event %s: %s", event, data)
		}
		var p types.ScanProgress
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			t.Fatalf("bad progress payload %q: %v", data, err)
		}
		updates = append(updates, p)
	}

	if len(updates) == 0 {
		t.Fatal("no progress updates streamed")
	}
	last := initial.Progress
	for _, p := range updates {
		if p.Progress < last {
			t.Errorf("progress went backwards: %d after %d", p.Progress, last)
		}
		last = p.Progress
	}
	final := updates[len(updates)-1]
	if final.Status != "completed" || final.Progress != 100 || final.ResultCount != 4 {
		t.Errorf("final update = %+v, want completed at 100 with 4 results", final)
	}
	for _, p := range updates[:len(updates)-1] {
		if p.Status != "running" {
			t.Errorf("intermediate update = %+v, want running", p)
		}
	}
}

package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"eviforge/internal/api"
	"eviforge/internal/cases"
	"eviforge/internal/custody"
	"eviforge/internal/dispatch"
	"eviforge/internal/engine"
	"eviforge/internal/models"
	"eviforge/internal/modules"
	"eviforge/internal/store"
	"eviforge/internal/vault"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	t.Setenv(apiTokenEnvKey, "")
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	v, err := vault.New(filepath.Join(dir, "vault"))
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	ledger := custody.New(v.LedgerPath)

	registry, err := modules.NewRegistry(modules.Builtin()...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	eng := engine.New(st, v, ledger, registry, time.Minute, nil)
	dispatcher := dispatch.New(dispatch.Options{
		Mode:          models.ModeInline,
		Store:         st,
		Registry:      registry,
		Runner:        eng,
		InlineWorkers: 2,
	})

	srv := New(Options{
		Addr:       "127.0.0.1:0",
		Store:      st,
		Vault:      v,
		Ledger:     ledger,
		Registry:   registry,
		Service:    cases.NewService(st, v, ledger),
		Dispatcher: dispatcher,
		Actor:      "tester",
	})

	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func createCase(t *testing.T, base, name string) models.Case {
	t.Helper()
	var c models.Case
	resp := doJSON(t, http.MethodPost, base+"/v1/cases", api.CreateCaseRequest{Name: name}, &c)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create case: status %d", resp.StatusCode)
	}
	return c
}

func uploadEvidence(t *testing.T, base, caseID, name string, content []byte) models.Evidence {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("source", "/seized/"+name); err != nil {
		t.Fatalf("write field: %v", err)
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/v1/cases/%s/evidence", base, caseID), &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload: status %d body %s", resp.StatusCode, raw)
	}
	var ev models.Evidence
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		t.Fatalf("decode evidence: %v", err)
	}
	return ev
}

func TestCaseLifecycle(t *testing.T) {
	ts := newTestServer(t)

	c := createCase(t, ts.URL, "intrusion 7")
	if c.ID == "" || c.Status != models.CaseOpen {
		t.Fatalf("unexpected case %+v", c)
	}

	var list api.CaseListResponse
	resp := doJSON(t, http.MethodGet, ts.URL+"/v1/cases", nil, &list)
	if resp.StatusCode != http.StatusOK || len(list.Cases) != 1 {
		t.Fatalf("list: status %d cases %d", resp.StatusCode, len(list.Cases))
	}

	var closed models.Case
	resp = doJSON(t, http.MethodPost, ts.URL+"/v1/cases/"+c.ID+"/close", nil, &closed)
	if resp.StatusCode != http.StatusOK || closed.Status != models.CaseClosed {
		t.Fatalf("close: status %d case %+v", resp.StatusCode, closed)
	}

	var errResp api.ErrorResponse
	resp = doJSON(t, http.MethodPost, ts.URL+"/v1/cases/"+c.ID+"/close", nil, &errResp)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double close: status %d", resp.StatusCode)
	}
	if errResp.Code != "case_closed" {
		t.Fatalf("double close: code %q", errResp.Code)
	}
}

func TestCaseNotFound(t *testing.T) {
	ts := newTestServer(t)

	var errResp api.ErrorResponse
	resp := doJSON(t, http.MethodGet, ts.URL+"/v1/cases/nope", nil, &errResp)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if errResp.ErrorCode != ErrCodeCaseNotFound {
		t.Fatalf("unexpected error code %d", errResp.ErrorCode)
	}
}

func TestSubmitAndPollJob(t *testing.T) {
	ts := newTestServer(t)

	c := createCase(t, ts.URL, "t")
	ev := uploadEvidence(t, ts.URL, c.ID, "note.txt", []byte("some text for inventory"))

	var job models.Job
	resp := doJSON(t, http.MethodPost, ts.URL+"/v1/cases/"+c.ID+"/jobs",
		api.SubmitJobRequest{EvidenceID: ev.ID, Module: "inventory"}, &job)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit: status %d", resp.StatusCode)
	}
	if job.Seq != 1 || job.DispatchPath != models.PathInline {
		t.Fatalf("unexpected job %+v", job)
	}

	jobURL := fmt.Sprintf("%s/v1/cases/%s/jobs/%d", ts.URL, c.ID, job.Seq)
	deadline := time.Now().Add(10 * time.Second)
	for {
		var polled models.Job
		resp = doJSON(t, http.MethodGet, jobURL, nil, &polled)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("poll: status %d", resp.StatusCode)
		}
		if polled.State.Terminal() {
			if polled.State != models.JobSucceeded {
				t.Fatalf("expected succeeded, got %+v", polled)
			}
			job = polled
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never finished, state %s", polled.State)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if len(job.Artifacts) != 1 {
		t.Fatalf("expected one artifact, got %v", job.Artifacts)
	}
	artifactResp, err := http.Get(ts.URL + "/v1/cases/" + c.ID + "/artifacts?path=" + job.Artifacts[0])
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	defer artifactResp.Body.Close()
	if artifactResp.StatusCode != http.StatusOK {
		t.Fatalf("artifact: status %d", artifactResp.StatusCode)
	}
	raw, err := io.ReadAll(artifactResp.Body)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !bytes.Contains(raw, []byte(ev.SHA256)) {
		t.Fatalf("inventory artifact missing evidence digest:\n%s", raw)
	}

	// case.opened, evidence.ingested, job.finalized.
	var custodyResp api.CustodyResponse
	resp = doJSON(t, http.MethodGet, ts.URL+"/v1/cases/"+c.ID+"/custody", nil, &custodyResp)
	if resp.StatusCode != http.StatusOK || len(custodyResp.Entries) != 3 {
		t.Fatalf("custody: status %d entries %d", resp.StatusCode, len(custodyResp.Entries))
	}
	if custodyResp.Entries[2].Action != models.ActionJobFinalized {
		t.Fatalf("unexpected final action %q", custodyResp.Entries[2].Action)
	}

	var verify cases.Verification
	resp = doJSON(t, http.MethodGet, ts.URL+"/v1/cases/"+c.ID+"/custody/verify", nil, &verify)
	if resp.StatusCode != http.StatusOK || !verify.OK || !verify.Ledger.Valid {
		t.Fatalf("verify: status %d report %+v", resp.StatusCode, verify)
	}
}

func TestSubmitUnknownModule(t *testing.T) {
	ts := newTestServer(t)

	c := createCase(t, ts.URL, "t")
	ev := uploadEvidence(t, ts.URL, c.ID, "a.bin", []byte("x"))

	var errResp api.ErrorResponse
	resp := doJSON(t, http.MethodPost, ts.URL+"/v1/cases/"+c.ID+"/jobs",
		api.SubmitJobRequest{EvidenceID: ev.ID, Module: "nonexistent"}, &errResp)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if errResp.ErrorCode != ErrCodeUnknownModule {
		t.Fatalf("unexpected error code %d", errResp.ErrorCode)
	}
}

func TestDuplicateEvidenceTarget(t *testing.T) {
	ts := newTestServer(t)

	c := createCase(t, ts.URL, "t")
	uploadEvidence(t, ts.URL, c.ID, "same.bin", []byte("first"))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "same.bin")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fw.Write([]byte("second"))
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/cases/"+c.ID+"/evidence", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	var errResp api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp.Code != "duplicate_target" {
		t.Fatalf("unexpected code %q", errResp.Code)
	}
}

func TestArtifactTraversalRejected(t *testing.T) {
	ts := newTestServer(t)
	c := createCase(t, ts.URL, "t")

	var errResp api.ErrorResponse
	resp := doJSON(t, http.MethodGet, ts.URL+"/v1/cases/"+c.ID+"/artifacts?path=../../etc/passwd", nil, &errResp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if errResp.Code != "path_outside_vault" {
		t.Fatalf("unexpected code %q", errResp.Code)
	}
}

func TestModulesListing(t *testing.T) {
	ts := newTestServer(t)

	var list api.ModuleListResponse
	resp := doJSON(t, http.MethodGet, ts.URL+"/v1/modules", nil, &list)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("modules: status %d", resp.StatusCode)
	}
	if len(list.Modules) != 4 {
		t.Fatalf("expected 4 builtin modules, got %d", len(list.Modules))
	}
}

func TestStatsOverview(t *testing.T) {
	ts := newTestServer(t)

	createCase(t, ts.URL, "a")
	c := createCase(t, ts.URL, "b")
	uploadEvidence(t, ts.URL, c.ID, "x.bin", []byte("x"))

	var stats models.CaseStats
	resp := doJSON(t, http.MethodGet, ts.URL+"/v1/cases/stats/overview", nil, &stats)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: status %d", resp.StatusCode)
	}
	if stats.Cases != 2 || stats.Evidence != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestWithAuth(t *testing.T) {
	t.Run("denies missing token", func(t *testing.T) {
		srv := &Server{apiToken: "token", actor: "tester"}
		nextCalled := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nextCalled = true
			w.WriteHeader(http.StatusNoContent)
		})
		handler := srv.withAuth(next)

		req := httptest.NewRequest(http.MethodGet, "/v1/cases", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
		if nextCalled {
			t.Fatal("handler must not run without auth")
		}
	})

	t.Run("denies wrong token", func(t *testing.T) {
		srv := &Server{apiToken: "token"}
		handler := srv.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		req := httptest.NewRequest(http.MethodGet, "/v1/cases", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("allows matching token", func(t *testing.T) {
		srv := &Server{apiToken: "token"}
		handler := srv.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		req := httptest.NewRequest(http.MethodGet, "/v1/cases", nil)
		req.Header.Set("Authorization", "Bearer token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", w.Code)
		}
	})

	t.Run("health bypasses auth", func(t *testing.T) {
		srv := &Server{apiToken: "token"}
		handler := srv.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", w.Code)
		}
	})
}

func TestListenAddrRemoteGuard(t *testing.T) {
	t.Run("allows loopback", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		addr, err := ListenAddr("http://127.0.0.1:7461")
		if err != nil {
			t.Fatalf("expected loopback to be allowed, got error: %v", err)
		}
		if addr != "127.0.0.1:7461" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})

	t.Run("blocks non-loopback by default", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		if _, err := ListenAddr("http://0.0.0.0:7461"); err == nil {
			t.Fatal("expected error for non-loopback listen host")
		}
	})

	t.Run("allows non-loopback when enabled", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "true")
		addr, err := ListenAddr("http://0.0.0.0:7461")
		if err != nil {
			t.Fatalf("expected allow-remote to permit host, got error: %v", err)
		}
		if addr != "0.0.0.0:7461" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})
}

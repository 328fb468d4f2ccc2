package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"accredo/internal/config"
	"accredo/internal/db"
	"accredo/internal/engine"
	"accredo/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

const testJWTSecret = "test-secret"

var actorHeader = map[string]string{"X-Actor-Id": "tester"}

func signToken(t *testing.T, secret, actorID string, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   actorID,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Now = func() time.Time { return time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC) }
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testJWTSecret, AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", res.StatusCode)
	}
	// health stays open
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should not require auth, got %d", res.StatusCode)
	}
}

func TestBearerToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	token := signToken(t, testJWTSecret, "jwt-user", time.Now().Add(time.Hour))
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("bearer auth failed: %d %s", res.StatusCode, string(data))
	}

	bad := signToken(t, "wrong-secret", "jwt-user", time.Now().Add(time.Hour))
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{
		"Authorization": "Bearer " + bad,
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", res.StatusCode)
	}
}

func TestRecordLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/workers", map[string]any{
		"name": "Dana Reyes", "company": "Starling Ltd",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create worker: %d %s", res.StatusCode, string(data))
	}
	var worker WorkerResponse
	_ = json.Unmarshal(data, &worker)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requirement-types", map[string]any{
		"name": "Medical checkup", "category": "medical", "validity_days": 365,
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create type: %d %s", res.StatusCode, string(data))
	}
	var reqType RequirementTypeResponse
	_ = json.Unmarshal(data, &reqType)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/records", map[string]any{
		"worker_id": worker.ID, "type_id": reqType.ID,
		"valid_from": "2024-01-01", "valid_to": "2024-07-01",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create record: %d %s", res.StatusCode, string(data))
	}
	var rec RecordResponse
	_ = json.Unmarshal(data, &rec)
	if rec.Status != "expiring" {
		t.Fatalf("expected expiring, got %s", rec.Status)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/records/"+rec.ID, map[string]any{
		"valid_from": "2024-01-01", "valid_to": "2024-07-01", "manual_status": "in_renewal",
	}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update record: %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &rec)
	if rec.Status != "in_renewal" {
		t.Fatalf("manual status not applied: %s", rec.Status)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/records/"+rec.ID, nil, actorHeader)
	if res.StatusCode >= 300 {
		t.Fatalf("delete record: %d %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/records/"+rec.ID, nil, actorHeader)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", res.StatusCode)
	}
}

func TestRecordValidationErrors(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/records", map[string]any{
		"worker_id": "nobody", "type_id": "nothing",
		"valid_from": "2024-01-01", "valid_to": "2025-01-01",
	}, actorHeader)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown refs, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Code != "not_found" {
		t.Fatalf("unexpected error envelope: %s", string(data))
	}
}

func TestCompletionEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"code": "SITE-100", "name": "South depot", "plan": "minimal",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("provision: %d %s", res.StatusCode, string(data))
	}
	var provisioned struct {
		Project ProjectResponse `json:"project"`
		Tasks   []TaskResponse  `json:"tasks"`
	}
	if err := json.Unmarshal(data, &provisioned); err != nil {
		t.Fatalf("unmarshal provision: %v", err)
	}
	if len(provisioned.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(provisioned.Tasks))
	}
	projectID := provisioned.Project.ID

	res, data = doJSON(t, client, http.MethodPut,
		srv.URL+"/v0/projects/"+projectID+"/tasks/"+provisioned.Tasks[0].ID+"/completion",
		map[string]any{"done": true}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("first completion: %d %s", res.StatusCode, string(data))
	}
	var completion CompletionResponse
	_ = json.Unmarshal(data, &completion)
	if completion.AllCompleted || completion.Completed != 1 {
		t.Fatalf("unexpected first completion: %+v", completion)
	}

	res, data = doJSON(t, client, http.MethodPut,
		srv.URL+"/v0/projects/"+projectID+"/tasks/"+provisioned.Tasks[1].ID+"/completion",
		map[string]any{"done": true}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second completion: %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &completion)
	if !completion.AllCompleted || completion.NewProjectStatus == nil || *completion.NewProjectStatus != "finalized" {
		t.Fatalf("expected finalization: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+projectID+"/progress", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("progress: %d %s", res.StatusCode, string(data))
	}
	var progress []RoleProgressResponse
	_ = json.Unmarshal(data, &progress)
	for _, bucket := range progress {
		if bucket.Completed != bucket.Total || bucket.Percent != 100 {
			t.Fatalf("expected full progress, got %+v", bucket)
		}
	}
}

func TestCompletionWrongProject(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"code": "A-1", "name": "a", "plan": "minimal",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("provision a: %d %s", res.StatusCode, string(data))
	}
	var first struct {
		Project ProjectResponse `json:"project"`
		Tasks   []TaskResponse  `json:"tasks"`
	}
	_ = json.Unmarshal(data, &first)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"code": "B-1", "name": "b", "plan": "minimal",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("provision b: %d %s", res.StatusCode, string(data))
	}
	var second struct {
		Project ProjectResponse `json:"project"`
	}
	_ = json.Unmarshal(data, &second)

	res, data = doJSON(t, client, http.MethodPut,
		srv.URL+"/v0/projects/"+second.Project.ID+"/tasks/"+first.Tasks[0].ID+"/completion",
		map[string]any{"done": true}, actorHeader)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on cross-project toggle, got %d %s", res.StatusCode, string(data))
	}
}

func TestTaskListDoneFilter(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"code": "FLT-1", "name": "filter", "plan": "minimal",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("provision: %d %s", res.StatusCode, string(data))
	}
	var provisioned struct {
		Project ProjectResponse `json:"project"`
		Tasks   []TaskResponse  `json:"tasks"`
	}
	_ = json.Unmarshal(data, &provisioned)
	projectID := provisioned.Project.ID

	res, data = doJSON(t, client, http.MethodPut,
		srv.URL+"/v0/projects/"+projectID+"/tasks/"+provisioned.Tasks[0].ID+"/completion",
		map[string]any{"done": true}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete task: %d %s", res.StatusCode, string(data))
	}

	list := func(query string) []TaskResponse {
		t.Helper()
		res, data := doJSON(t, client, http.MethodGet,
			srv.URL+"/v0/projects/"+projectID+"/tasks"+query, nil, actorHeader)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("list %q: %d %s", query, res.StatusCode, string(data))
		}
		var page paginatedTasks
		if err := json.Unmarshal(data, &page); err != nil {
			t.Fatalf("unmarshal %q: %v", query, err)
		}
		return page.Items
	}

	if items := list(""); len(items) != 2 {
		t.Fatalf("unfiltered: expected 2 tasks, got %d", len(items))
	}
	done := list("?done=true")
	if len(done) != 1 || !done[0].Done {
		t.Fatalf("done=true: unexpected items %+v", done)
	}
	open := list("?done=false")
	if len(open) != 1 || open[0].Done {
		t.Fatalf("done=false: unexpected items %+v", open)
	}

	res, data = doJSON(t, client, http.MethodGet,
		srv.URL+"/v0/projects/"+projectID+"/tasks?done=maybe", nil, actorHeader)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad done value, got %d %s", res.StatusCode, string(data))
	}
}

func TestAssignmentEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"code": "AS-1", "name": "assign", "plan": "minimal",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("provision: %d %s", res.StatusCode, string(data))
	}
	var provisioned struct {
		Project ProjectResponse `json:"project"`
	}
	_ = json.Unmarshal(data, &provisioned)
	projectID := provisioned.Project.ID

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/projects/"+projectID+"/assignments/safety",
		map[string]any{"person_id": "user-7"}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set assignment: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+projectID+"/assignments", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list assignments: %d %s", res.StatusCode, string(data))
	}
	var assignments []AssignmentResponse
	_ = json.Unmarshal(data, &assignments)
	if len(assignments) != 1 || assignments[0].PersonID != "user-7" {
		t.Fatalf("unexpected assignments: %s", string(data))
	}
	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/projects/"+projectID+"/assignments/safety", nil, actorHeader)
	if res.StatusCode >= 300 {
		t.Fatalf("clear assignment: %d", res.StatusCode)
	}
}

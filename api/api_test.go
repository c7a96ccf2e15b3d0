package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/campushub/studyhub/auth"
	"github.com/campushub/studyhub/config"
	"github.com/campushub/studyhub/persistence"
	"github.com/campushub/studyhub/types"
	"github.com/campushub/studyhub/upload"
)

type testAPI struct {
	router *mux.Router
	store  persistence.Persister
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		AuthConfig: config.AuthConfig{Secret: "test-secret", TokenTTL: time.Hour},
		PersistenceConfig: config.PersistenceConfig{
			Type: "sqlite",
			DSN:  filepath.Join(dir, "test.db"),
		},
		UploadConfig: config.UploadConfig{Dir: filepath.Join(dir, "uploads")},
	}
	store, err := persistence.NewPersister(cfg)
	if err != nil {
		t.Fatal(err)
	}
	verifier, err := auth.NewVerifier(cfg)
	if err != nil {
		t.Fatal(err)
	}
	relay, err := upload.NewRelay(cfg)
	if err != nil {
		t.Fatal(err)
	}
	api := &testAPI{
		router: NewRouter(store, verifier, relay, nil, cfg),
		store:  store,
	}
	t.Cleanup(func() { store.Close() })
	return api
}

// do performs a JSON request against the router. An empty token leaves the
// Authorization header unset.
func (a *testAPI) do(t *testing.T, method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		body = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func (a *testAPI) doMultipart(t *testing.T, path, token string, form map[string]string, field, filename, contentType, content string) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range form {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="` + field + `"; filename="` + filename + `"`}
	header["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(header)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

type authResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

func (a *testAPI) register(t *testing.T, name, email string) authResponse {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/auth/register", "", map[string]interface{}{
		"name":     name,
		"email":    email,
		"password": "password123",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register returned %d: %s", rr.Code, rr.Body.String())
	}
	resp := authResponse{}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func (a *testAPI) createGroup(t *testing.T, token, name, subject string, capacity int) types.Group {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/groups/create", token, map[string]interface{}{
		"name":     name,
		"subject":  subject,
		"capacity": capacity,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("group create returned %d: %s", rr.Code, rr.Body.String())
	}
	group := types.Group{}
	if err := json.Unmarshal(rr.Body.Bytes(), &group); err != nil {
		t.Fatal(err)
	}
	return group
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	resp := struct {
		Error string `json:"error"`
	}{}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.Error
}

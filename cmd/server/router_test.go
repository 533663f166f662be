package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/otcheredev/therapisttrack-records/internal/cache"
	"github.com/otcheredev/therapisttrack-records/internal/config"
	"github.com/otcheredev/therapisttrack-records/internal/metrics"
	"github.com/otcheredev/therapisttrack-records/internal/models"
	"github.com/otcheredev/therapisttrack-records/internal/repository"
	"github.com/otcheredev/therapisttrack-records/internal/services"
	"github.com/otcheredev/therapisttrack-records/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Cache:   config.CacheConfig{Enabled: true, Type: "memory", TTL: time.Minute},
		CORS:    config.CORSConfig{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET", "POST"}},
		Metrics: config.MetricsConfig{Enabled: true, Namespace: "test"},
		Storage: config.StorageConfig{Type: "memory", MaxSize: 1 << 20},
	}
}

type testServer struct {
	t        *testing.T
	handler  http.Handler
	doctorID string
	token    string
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()

	store := repository.NewMemoryStore()
	memCache := cache.NewMemoryCache(time.Minute)
	t.Cleanup(func() { memCache.Close() })
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(cfg.Metrics.Namespace, reg)

	return &testServer{
		t: t,
		handler: newRouter(&app{
			cfg:      cfg,
			store:    store,
			cache:    memCache,
			blobs:    storage.NewMemoryStore(cfg.Storage.MaxSize),
			core:     services.NewCore(store, nil, collector),
			metrics:  collector,
			gatherer: reg,
		}),
	}
}

func (s *testServer) do(method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	return s.send(req)
}

func (s *testServer) send(req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	s.t.Helper()
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var payload map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func (s *testServer) registerDoctor() {
	s.t.Helper()
	rec, body := s.do(http.MethodPost, "/users/register", map[string]any{
		"id":        "auth0|doctor-1",
		"names":     "Ana",
		"lastNames": "Lopez",
		"mails":     []string{"ana@example.com"},
		"rol":       "Doctor",
		"roleDependentInfo": map[string]any{
			"collegiateNumber": "1234",
			"specialty":        "Psicologia",
		},
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	s.doctorID = body["roleId"].(string)
}

func (s *testServer) createTemplate(path, idKey string, body map[string]any) string {
	s.t.Helper()
	body["doctorId"] = s.doctorID
	rec, payload := s.do(http.MethodPost, path+"/", body)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return payload["data"].(map[string]any)[idKey].(string)
}

func (s *testServer) createRecord(templateID, names, lastNames string, fields []map[string]any) string {
	s.t.Helper()
	rec, payload := s.do(http.MethodPost, "/records/", map[string]any{
		"doctorId":   s.doctorID,
		"templateId": templateID,
		"patient":    map[string]any{"names": names, "lastnames": lastNames, "fields": fields},
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return payload["recordId"].(string)
}

func (s *testServer) upload(meta map[string]any, content string) (*httptest.ResponseRecorder, map[string]any) {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	raw, err := json.Marshal(meta)
	require.NoError(s.t, err)
	require.NoError(s.t, mw.WriteField("metadata", string(raw)))

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="notes.txt"`)
	header.Set("Content-Type", "text/plain")
	part, err := mw.CreatePart(header)
	require.NoError(s.t, err)
	_, err = part.Write([]byte(content))
	require.NoError(s.t, err)
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/files/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.send(req)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec, body := s.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, map[string]any{"database": "healthy", "cache": "healthy", "storage": "healthy"}, body["services"])

	rec, _ = s.do(http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.do(http.MethodGet, "/health", nil)

	rec, _ := s.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestTemplateLifecycle(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.registerDoctor()

	id := s.createTemplate("/doctor/PatientTemplate", "patientTemplateId", map[string]any{
		"name": "Intake",
		"fields": []map[string]any{
			{"name": "Edad", "type": "NUMBER", "required": true},
			{"name": "Motivo", "type": "TEXT"},
		},
	})

	rec, body := s.do(http.MethodGet, "/doctor/PatientTemplate/?doctorId="+s.doctorID+"&templateId="+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(200), body["status"])
	assert.Equal(t, "Request successful.", body["message"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "Intake", data["name"])
	assert.Len(t, data["fields"], 2)
	assert.Equal(t, []any{}, data["categories"])

	rec, _ = s.do(http.MethodPost, "/doctor/PatientTemplate/fields", map[string]any{
		"doctorId":   s.doctorID,
		"templateId": id,
		"field":      map[string]any{"name": "Nombres", "type": "TEXT"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(http.MethodPatch, "/doctor/PatientTemplate/", map[string]any{
		"doctorId": s.doctorID, "templateId": id, "name": "Primera consulta",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = s.do(http.MethodGet, "/doctor/PatientTemplate/list?doctorId="+s.doctorID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	templates := body["templates"].([]any)
	require.Len(t, templates, 1)
	assert.Equal(t, "Primera consulta", templates[0].(map[string]any)["name"])

	// the same id is not a file template
	rec, body = s.do(http.MethodGet, "/doctor/FileTemplate/?doctorId="+s.doctorID+"&templateId="+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Template not found.", body["message"])

	rec, _ = s.do(http.MethodDelete, "/doctor/PatientTemplate/", map[string]any{"doctorId": s.doctorID, "templateId": id})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestErrors(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.registerDoctor()

	tests := []struct {
		name    string
		method  string
		target  string
		body    any
		status  int
		message string
	}{
		{"missing query params", http.MethodGet, "/records/?doctorId=" + "x", nil, http.StatusBadRequest, "Missing Fields."},
		{"empty body", http.MethodPost, "/records/", nil, http.StatusBadRequest, "Missing Fields."},
		{"unknown doctor", http.MethodGet, "/doctor/PatientTemplate/list?doctorId=not-a-uuid", nil, http.StatusNotFound, "Doctor not found."},
		{"bad field type", http.MethodPost, "/doctor/PatientTemplate/", map[string]any{
			"doctorId": "x", "name": "T", "fields": []map[string]any{{"name": "A", "type": "BLOB"}},
		}, http.StatusMethodNotAllowed, "Specified type does not exist."},
		{"duplicate user", http.MethodPost, "/users/register", map[string]any{
			"id": "auth0|doctor-1", "names": "A", "lastNames": "B", "mails": []string{"x@example.com"}, "rol": "Admin",
		}, http.StatusNotAcceptable, "Item with that id/name already exists"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := s.do(tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, float64(tt.status), body["status"])
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

func TestRecordsAndSearch(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.registerDoctor()

	templateID := s.createTemplate("/doctor/PatientTemplate", "patientTemplateId", map[string]any{
		"name": "Intake",
		"fields": []map[string]any{
			{"name": "Edad", "type": "NUMBER", "required": true},
			{"name": "Estado", "type": "CHOICE", "options": []string{"activo", "alta"}},
		},
	})

	ana := s.createRecord(templateID, "Ana", "Perez", []map[string]any{{"name": "Edad", "value": 31}, {"name": "Estado", "value": "activo"}})
	s.createRecord(templateID, "Luis", "Gomez", []map[string]any{{"name": "Edad", "value": 45}, {"name": "Estado", "value": "alta"}})
	s.createRecord(templateID, "Marta", "Diaz", []map[string]any{{"name": "Edad", "value": 22}})

	rec, body := s.do(http.MethodGet, "/records/?doctorId="+s.doctorID+"&recordId="+ana, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	patient := body["patient"].(map[string]any)
	assert.Equal(t, "Ana", patient["names"])
	assert.Equal(t, "Perez", patient["lastnames"])

	rec, body = s.do(http.MethodPost, "/records/search", map[string]any{
		"doctorId": s.doctorID,
		"limit":    10,
		"page":     0,
		"fields":   []map[string]any{{"name": "Edad", "type": "NUMBER"}},
		"sorts":    []map[string]any{{"name": "Edad", "type": "NUMBER", "mode": "desc"}},
		"filters": []map[string]any{
			{"name": "Edad", "type": "NUMBER", "operation": "greater_than", "values": []any{25}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2), body["total"])
	records := body["records"].([]any)
	require.Len(t, records, 2)
	first := records[0].(map[string]any)["patient"].(map[string]any)
	assert.Equal(t, "Luis", first["names"])
	assert.Equal(t, "Gomez", first["lastNames"])
	assert.Len(t, first["fields"], 1)

	rec, _ = s.do(http.MethodPost, "/records/search", map[string]any{
		"doctorId": s.doctorID, "limit": 10, "page": 0, "fields": []any{}, "sorts": []any{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = s.do(http.MethodPost, "/records/search", map[string]any{
		"doctorId": s.doctorID, "limit": 10, "fields": []any{}, "sorts": []any{}, "filters": []any{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing Fields.", body["message"])

	rec, body = s.do(http.MethodPost, "/records/search", map[string]any{
		"doctorId": s.doctorID, "page": 0, "fields": []any{}, "sorts": []any{}, "filters": []any{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing Fields.", body["message"])

	rec, body = s.do(http.MethodGet, "/records/search?doctorId="+s.doctorID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["fields"], 2)

	rec, _ = s.do(http.MethodDelete, "/records/", map[string]any{"doctorId": s.doctorID, "recordId": ana})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = s.do(http.MethodGet, "/records/?doctorId="+s.doctorID+"&recordId="+ana, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Record not found.", body["message"])
}

func TestFileUploadAndContent(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.registerDoctor()

	patientTemplate := s.createTemplate("/doctor/PatientTemplate", "patientTemplateId", map[string]any{
		"name": "Intake", "categories": []string{"Evaluacion"}, "fields": []any{},
	})
	fileTemplate := s.createTemplate("/doctor/FileTemplate", "fileTemplateId", map[string]any{
		"name":   "Informe",
		"fields": []map[string]any{{"name": "Sesion", "type": "NUMBER", "required": true}},
	})
	recordID := s.createRecord(patientTemplate, "Ana", "Perez", []map[string]any{})

	meta := map[string]any{
		"doctorId":   s.doctorID,
		"recordId":   recordID,
		"templateId": fileTemplate,
		"name":       "Informe inicial",
		"category":   "Evaluacion",
		"fields":     []map[string]any{{"name": "Sesion", "value": 1}},
	}
	rec, body := s.upload(meta, "session notes")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	fileID := body["fileId"].(string)
	assert.Equal(t, float64(1), body["pages"])

	rec, body = s.do(http.MethodGet, "/files/?doctorId="+s.doctorID+"&fileId="+fileID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Informe inicial", body["name"])
	assert.Equal(t, "Evaluacion", body["category"])

	req := httptest.NewRequest(http.MethodGet, "/files/content?doctorId="+s.doctorID+"&fileId="+fileID, nil)
	rec, _ = s.send(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "session notes", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))

	search := map[string]any{
		"doctorId": s.doctorID, "recordId": recordID, "category": "", "limit": 5, "page": 0,
		"fields": []any{}, "sorts": []any{}, "filters": []any{},
	}
	rec, body = s.do(http.MethodPost, "/files/search", search)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), body["total"])

	for _, key := range []string{"category", "limit", "page", "recordId"} {
		partial := map[string]any{}
		for k, v := range search {
			if k != key {
				partial[k] = v
			}
		}
		rec, body = s.do(http.MethodPost, "/files/search", partial)
		assert.Equal(t, http.StatusBadRequest, rec.Code, key)
		assert.Equal(t, "Missing Fields.", body["message"], key)
	}

	meta["category"] = "Otra"
	rec, body = s.upload(meta, "x")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Invalid value for TEXT field.", body["message"])

	// the record has a file, so it cannot go
	rec, _ = s.do(http.MethodDelete, "/records/", map[string]any{"doctorId": s.doctorID, "recordId": recordID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = s.do(http.MethodDelete, "/files/", map[string]any{"doctorId": s.doctorID, "fileId": fileID})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuditEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.registerDoctor()
	s.createTemplate("/doctor/PatientTemplate", "patientTemplateId", map[string]any{"name": "Intake", "fields": []any{}})

	rec, body := s.do(http.MethodGet, "/audit?doctorId="+s.doctorID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["logs"])

	rec, _ = s.do(http.MethodGet, "/audit?doctorId="+s.doctorID+"&limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthenticatedRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, Secret: "secret"}
	s := newTestServer(t, cfg)

	rec, _ := s.do(http.MethodGet, "/users/list", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// health and metrics stay open
	rec, _ = s.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, models.JWTClaims{
		Role: "Admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "auth0|admin",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	s.token = token

	rec, body := s.do(http.MethodGet, "/users/list", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["users"])
}

func TestFlushTemplateCache(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache(time.Minute)
	defer c.Close()

	require.NoError(t, c.Set(ctx, cache.TemplateKey("a"), []byte("{}"), time.Minute))
	require.NoError(t, c.Set(ctx, "session", []byte("x"), time.Minute))

	flushTemplateCache(ctx, c)

	_, err := c.Get(ctx, cache.TemplateKey("a"))
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
	_, err = c.Get(ctx, "session")
	assert.NoError(t, err)
}

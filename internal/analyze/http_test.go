package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type stubAnalyzeService struct {
	manifest   *JobManifest
	prepareErr error
	discarded  []string
}

func (s *stubAnalyzeService) PrepareJob(ctx context.Context, in PrepareInput) (*JobManifest, error) {
	return s.manifest, s.prepareErr
}

func (s *stubAnalyzeService) RunJob(ctx context.Context, jobID string, reporter ProgressReporter) (*Result, error) {
	return nil, errors.New("not used")
}

func (s *stubAnalyzeService) DiscardJob(jobID string) error {
	s.discarded = append(s.discarded, jobID)
	return nil
}

type stubScheduler struct {
	scheduled []*JobManifest
	err       error
}

func (s *stubScheduler) Schedule(ctx context.Context, manifest *JobManifest) error {
	if s.err != nil {
		return s.err
	}
	s.scheduled = append(s.scheduled, manifest)
	return nil
}

func newAnalyzeRequest(t *testing.T, variables string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fileWriter, err := writer.CreateFormFile("files[]", "policy.pdf")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := io.Copy(fileWriter, bytes.NewReader([]byte("%PDF-1.4 dummy"))); err != nil {
		t.Fatalf("failed to write dummy file: %v", err)
	}
	fields := map[string]string{
		"taskType":  string(TaskQuoteExtraction),
		"mainQuery": "Find all text about {variable_name}",
		"variables": variables,
		"email":     "user@example.com",
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field %s: %v", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestAnalyzeHandlerAccepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubAnalyzeService{manifest: &JobManifest{JobID: "job-123"}}
	scheduler := &stubScheduler{}

	rec := httptest.NewRecorder()
	router := gin.New()
	router.POST("/api/analyze", AnalyzeHandler(service, scheduler, "profile"))
	router.ServeHTTP(rec, newAnalyzeRequest(t, `[{"name":"net-zero target"}]`))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["jobId"] != "job-123" {
		t.Fatalf("unexpected jobId: %s", payload["jobId"])
	}
	if len(scheduler.scheduled) != 1 || scheduler.scheduled[0].JobID != "job-123" {
		t.Fatalf("job was not scheduled: %#v", scheduler.scheduled)
	}
}

func TestAnalyzeHandlerLimitExceeded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubAnalyzeService{
		prepareErr: &Error{Code: "LIMIT_EXCEEDED", Message: "サイズ上限を超えています"},
	}

	rec := httptest.NewRecorder()
	router := gin.New()
	router.POST("/api/analyze", AnalyzeHandler(service, &stubScheduler{}, "profile"))
	router.ServeHTTP(rec, newAnalyzeRequest(t, `["target"]`))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["code"] != "LIMIT_EXCEEDED" {
		t.Fatalf("unexpected code: %s", payload["code"])
	}
}

func TestAnalyzeHandlerScheduleFailureDiscardsJob(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubAnalyzeService{manifest: &JobManifest{JobID: "job-456"}}
	scheduler := &stubScheduler{err: errors.New("queue full")}

	rec := httptest.NewRecorder()
	router := gin.New()
	router.POST("/api/analyze", AnalyzeHandler(service, scheduler, "profile"))
	router.ServeHTTP(rec, newAnalyzeRequest(t, `["target"]`))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if len(service.discarded) != 1 || service.discarded[0] != "job-456" {
		t.Fatalf("expected workspace discard: %#v", service.discarded)
	}
}

func TestAnalyzeHandlerInvalidVariables(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubAnalyzeService{manifest: &JobManifest{JobID: "job-789"}}

	rec := httptest.NewRecorder()
	router := gin.New()
	router.POST("/api/analyze", AnalyzeHandler(service, &stubScheduler{}, "profile"))
	router.ServeHTTP(rec, newAnalyzeRequest(t, "not-json"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestParseVariables(t *testing.T) {
	specs, err := parseVariables(`[{"name":"target","description":"emission target","context":"national policy"}]`)
	if err != nil {
		t.Fatalf("parseVariables returned error: %v", err)
	}
	if len(specs) != 1 || specs[0].Name != "target" || specs[0].Description != "emission target" {
		t.Fatalf("unexpected specs: %#v", specs)
	}

	specs, err = parseVariables(`["alpha","beta"]`)
	if err != nil {
		t.Fatalf("parseVariables returned error for string array: %v", err)
	}
	if len(specs) != 2 || specs[0].Name != "alpha" || specs[1].Name != "beta" {
		t.Fatalf("unexpected specs: %#v", specs)
	}

	if _, err := parseVariables(""); err == nil {
		t.Fatal("expected error for empty variables")
	}
	if _, err := parseVariables("{}"); err == nil {
		t.Fatal("expected error for non-array variables")
	}
}

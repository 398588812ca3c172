package analyze

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"testing"
	"time"

	"github.com/yourusername/policy-reader/internal/config"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := &config.Config{
		MaxFileSize:       1 << 20,
		MaxPages:          100,
		WorkDir:           t.TempDir(),
		JobRetentionHours: 24,
		ChunkSize:         200,
		MaxContextChars:   25000,
		GPTModel:          "gpt-4.1",
		EmbeddingModel:    "text-embedding-3-small",
	}
	return NewService(cfg, nil, nil, nil)
}

func uploadHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fw, err := writer.CreateFormFile("files[]", name)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	form, err := multipart.NewReader(body, writer.Boundary()).ReadForm(4 << 20)
	if err != nil {
		t.Fatalf("failed to parse form: %v", err)
	}
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["files[]"][0]
}

func validInput(files ...*multipart.FileHeader) PrepareInput {
	return PrepareInput{
		Files:     files,
		TaskType:  TaskQuoteExtraction,
		MainQuery: "Find text about {variable_name}",
		Variables: []VariableSpec{{Name: "target"}},
		Email:     "user@example.com",
	}
}

func TestPrepareJobValidation(t *testing.T) {
	svc := newTestService(t)
	file := uploadHeader(t, "doc.pdf", []byte("%PDF-1.4 dummy"))

	cases := []struct {
		name   string
		mutate func(*PrepareInput)
	}{
		{"no files", func(in *PrepareInput) { in.Files = nil }},
		{"empty query", func(in *PrepareInput) { in.MainQuery = "  " }},
		{"no variables", func(in *PrepareInput) { in.Variables = nil }},
		{"blank variable name", func(in *PrepareInput) { in.Variables = []VariableSpec{{Name: " "}} }},
		{"bad email", func(in *PrepareInput) { in.Email = "not-an-email" }},
	}
	for _, tc := range cases {
		in := validInput(file)
		tc.mutate(&in)
		_, err := svc.PrepareJob(context.Background(), in)
		var apiErr *Error
		if !errors.As(err, &apiErr) || apiErr.Code != "INVALID_INPUT" {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

func TestPrepareJobRequiresAPIKey(t *testing.T) {
	svc := newTestService(t)
	t.Setenv("OPENAI_APIKEY", "")
	file := uploadHeader(t, "doc.pdf", []byte("%PDF-1.4 dummy"))

	_, err := svc.PrepareJob(context.Background(), validInput(file))
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "CONFIG_ERROR" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPrepareJobRejectsUnsupportedFormat(t *testing.T) {
	svc := newTestService(t)
	t.Setenv("OPENAI_APIKEY", "test-key")
	file := uploadHeader(t, "notes.txt", []byte("just some plain text, not a document"))

	_, err := svc.PrepareJob(context.Background(), validInput(file))
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "INVALID_INPUT" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPrepareJobRejectsOversizeUpload(t *testing.T) {
	svc := newTestService(t)
	svc.cfg.MaxFileSize = 8
	t.Setenv("OPENAI_APIKEY", "test-key")
	file := uploadHeader(t, "doc.pdf", []byte("%PDF-1.4 larger than eight bytes"))

	_, err := svc.PrepareJob(context.Background(), validInput(file))
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "LIMIT_EXCEEDED" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestManifestRoundtrip(t *testing.T) {
	dir := t.TempDir()
	manifest := &JobManifest{
		JobID:        "job-1",
		TaskType:     TaskQuoteExtraction,
		OutputFormat: FormatQuotesStructured,
		MainQuery:    "Find text about {variable_name}",
		Variables:    []VariableSpec{{Name: "target", Description: "emission target"}},
		Email:        "user@example.com",
		Profile:      "research",
		GPTModel:     "gpt-4.1",
		ChunkSize:    200,
		Files: []JobFile{
			{StoredName: "doc-000.pdf", OriginalName: "policy.pdf", Kind: "pdf", Size: 1234, Pages: 12},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := writeManifest(dir, manifest); err != nil {
		t.Fatalf("writeManifest returned error: %v", err)
	}

	loaded, err := loadManifest(dir)
	if err != nil {
		t.Fatalf("loadManifest returned error: %v", err)
	}
	if loaded.JobID != manifest.JobID || loaded.TaskType != manifest.TaskType {
		t.Fatalf("unexpected manifest: %#v", loaded)
	}
	if len(loaded.Files) != 1 || loaded.Files[0].Pages != 12 {
		t.Fatalf("files not preserved: %#v", loaded.Files)
	}
	if !loaded.CreatedAt.Equal(manifest.CreatedAt) {
		t.Fatalf("createdAt not preserved: %v != %v", loaded.CreatedAt, manifest.CreatedAt)
	}

	stored := storedFilesFromManifest(dir, loaded)
	if len(stored) != 1 || stored[0].originalName != "policy.pdf" {
		t.Fatalf("unexpected stored files: %#v", stored)
	}
}

func TestDiscardJobRequiresID(t *testing.T) {
	svc := newTestService(t)
	if err := svc.DiscardJob(" "); err == nil {
		t.Fatal("expected error for blank jobID")
	}
	if err := svc.DiscardJob("no-such-job"); err != nil {
		t.Fatalf("discard of missing workspace must be idempotent: %v", err)
	}
}

package bridge

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestUpload_ParsesResult(t *testing.T) {
	var gotSkipHeader, gotAccept string
	var gotFilename string
	var gotPayload []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSkipHeader = r.Header.Get("ngrok-skip-browser-warning")
		gotAccept = r.Header.Get("Accept")

		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("ParseMultipartForm failed: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile failed: %v", err)
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotFilename = header.Filename
		gotPayload, _ = io.ReadAll(file)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"tick-1","url":"https://x/y","caption":"a cat"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.Upload(context.Background(), []byte("fake-png-bytes"))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if result.ID != "tick-1" {
		t.Errorf("Expected id 'tick-1', got '%s'", result.ID)
	}
	if result.URL != "https://x/y" {
		t.Errorf("Expected url 'https://x/y', got '%s'", result.URL)
	}
	if result.Caption != "a cat" {
		t.Errorf("Expected caption 'a cat', got '%s'", result.Caption)
	}
	if gotSkipHeader != "true" {
		t.Errorf("Expected ngrok-skip-browser-warning header 'true', got '%s'", gotSkipHeader)
	}
	if gotAccept != "application/json" {
		t.Errorf("Expected Accept 'application/json', got '%s'", gotAccept)
	}
	if gotFilename != "frame.png" {
		t.Errorf("Expected filename 'frame.png', got '%s'", gotFilename)
	}
	if string(gotPayload) != "fake-png-bytes" {
		t.Errorf("Payload mismatch, got '%s'", gotPayload)
	}
}

func TestUpload_MissingFieldsTolerated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"caption":"just a caption"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.Upload(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("Upload failed on partial body: %v", err)
	}
	if result.Caption != "just a caption" {
		t.Errorf("Expected caption 'just a caption', got '%s'", result.Caption)
	}
	if result.URL != "" || result.ID != "" {
		t.Errorf("Expected absent fields to stay empty, got url='%s' id='%s'", result.URL, result.ID)
	}
}

func TestUpload_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>definitely not json</html>"))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Upload(context.Background(), []byte("x"))
	if err == nil {
		t.Fatal("Expected error on malformed body")
	}

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected TransportError, got %T", err)
	}
	if terr.Kind != KindParse {
		t.Errorf("Expected KindParse, got %v", terr.Kind)
	}
}

func TestUpload_HTTPStatusFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model fell over", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Upload(context.Background(), []byte("x"))
	if err == nil {
		t.Fatal("Expected error on HTTP 500")
	}

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected TransportError, got %T", err)
	}
	if terr.Kind != KindStatus {
		t.Errorf("Expected KindStatus, got %v", terr.Kind)
	}
	if terr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", terr.StatusCode)
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("Expected error text to mention the status, got '%s'", err.Error())
	}
}

func TestUpload_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listening anymore

	client := NewClient(server.URL)
	_, err := client.Upload(context.Background(), []byte("x"))
	if err == nil {
		t.Fatal("Expected error on dead endpoint")
	}

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected TransportError, got %T", err)
	}
	if terr.Kind != KindNetwork {
		t.Errorf("Expected KindNetwork, got %v", terr.Kind)
	}
}

func TestPoll_ReturnsRawBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			t.Errorf("Expected GET, got %s", r.Method)
		}
		w.Write([]byte("<html>rendered tick</html>"))
	}))
	defer server.Close()

	client := NewClient("unused")
	body, err := client.Poll(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if string(body) != "<html>rendered tick</html>" {
		t.Errorf("Unexpected body '%s'", body)
	}
}

func TestPoll_StatusFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient("unused")
	_, err := client.Poll(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected error on HTTP 404")
	}

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected TransportError, got %T", err)
	}
	if terr.Kind != KindStatus || terr.StatusCode != http.StatusNotFound {
		t.Errorf("Expected KindStatus/404, got %v/%d", terr.Kind, terr.StatusCode)
	}
}

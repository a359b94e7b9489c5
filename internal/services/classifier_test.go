package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc/internal/lib"
	"github.com/veridoc/veridoc/internal/models"
)

// fastClient keeps retry backoff out of test runtime
func fastClient(attempts int) *HTTPClient {
	return NewHTTPClient(5*time.Second, models.RetryConfig{
		MaxAttempts:      attempts,
		InitialBackoffMs: 1,
		MaxBackoffMs:     2,
	}, lib.DefaultLogger)
}

// TestHTTPClassifier_Classify verifies the multipart upload and response
// decoding
func TestHTTPClassifier_Classify(t *testing.T) {
	tempDir := t.TempDir()
	path := writeTestFile(t, tempDir, "passport.jpg", "jpeg bytes")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer func() { _ = file.Close() }()
		assert.Equal(t, "passport.jpg", header.Filename)

		_ = json.NewEncoder(w).Encode(ClassificationResult{
			DocumentType: "passport",
			Confidence:   0.93,
			Categories:   []string{"identity_proof"},
		})
	}))
	defer server.Close()

	classifier := NewHTTPClassifier(server.URL, fastClient(2))
	result, err := classifier.Classify(path)
	require.NoError(t, err)

	assert.Equal(t, "passport", result.DocumentType)
	assert.InDelta(t, 0.93, result.Confidence, 0.001)
	assert.Equal(t, []string{"identity_proof"}, result.Categories)
}

// TestHTTPClassifier_Rejection verifies the service's error body surfaces in
// the returned error
func TestHTTPClassifier_Rejection(t *testing.T) {
	tempDir := t.TempDir()
	path := writeTestFile(t, tempDir, "junk.jpg", "junk")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported image format", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	classifier := NewHTTPClassifier(server.URL, fastClient(2))
	_, err := classifier.Classify(path)
	require.Error(t, err)
	assert.True(t, lib.IsCategory(err, lib.CategoryCapability))
	assert.Contains(t, err.Error(), "unsupported image format")
}

// TestHTTPClassifier_MissingURL verifies an unconfigured endpoint is a
// configuration error, not a network one
func TestHTTPClassifier_MissingURL(t *testing.T) {
	classifier := NewHTTPClassifier("", fastClient(1))
	_, err := classifier.Classify("/tmp/whatever.jpg")
	require.Error(t, err)
	assert.True(t, lib.IsCategory(err, lib.CategoryConfiguration))
}

// TestHTTPClassifier_EmptyDocumentType verifies a structurally valid but
// useless response is rejected
func TestHTTPClassifier_EmptyDocumentType(t *testing.T) {
	tempDir := t.TempDir()
	path := writeTestFile(t, tempDir, "id.jpg", "bytes")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"confidence": 0.9}`))
	}))
	defer server.Close()

	classifier := NewHTTPClassifier(server.URL, fastClient(2))
	_, err := classifier.Classify(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document_type")
}

// TestHTTPClassifier_RetriesTransientErrors verifies 503 responses are
// retried until the service recovers
func TestHTTPClassifier_RetriesTransientErrors(t *testing.T) {
	tempDir := t.TempDir()
	path := writeTestFile(t, tempDir, "id.jpg", "bytes")

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(ClassificationResult{DocumentType: "passport", Confidence: 0.9})
	}))
	defer server.Close()

	classifier := NewHTTPClassifier(server.URL, fastClient(5))
	result, err := classifier.Classify(path)
	require.NoError(t, err)
	assert.Equal(t, "passport", result.DocumentType)
	assert.Equal(t, int32(3), calls.Load())
}

// TestHTTPExtractor_Extract verifies the document type reaches the service
// and nil fields are normalized
func TestHTTPExtractor_Extract(t *testing.T) {
	tempDir := t.TempDir()
	path := writeTestFile(t, tempDir, "id.jpg", "bytes")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "passport", r.URL.Query().Get("document_type"))
		_ = json.NewEncoder(w).Encode(ExtractionResult{
			Fields:     map[string]string{"full_name": "Jane Doe"},
			Confidence: 0.88,
		})
	}))
	defer server.Close()

	extractor := NewHTTPExtractor(server.URL, fastClient(2))
	result, err := extractor.Extract(path, "passport")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", result.Fields["full_name"])
}

// TestHTTPExtractor_EscapesDocumentType verifies reserved characters in the
// document type survive the trip as a query parameter
func TestHTTPExtractor_EscapesDocumentType(t *testing.T) {
	tempDir := t.TempDir()
	path := writeTestFile(t, tempDir, "id.jpg", "bytes")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bank statement & passbook", r.URL.Query().Get("document_type"))
		_ = json.NewEncoder(w).Encode(ExtractionResult{Confidence: 0.7})
	}))
	defer server.Close()

	extractor := NewHTTPExtractor(server.URL, fastClient(2))
	_, err := extractor.Extract(path, "bank statement & passbook")
	require.NoError(t, err)
}

// TestHTTPExtractor_EmptyFields verifies a response with no fields yields an
// empty map, never nil
func TestHTTPExtractor_EmptyFields(t *testing.T) {
	tempDir := t.TempDir()
	path := writeTestFile(t, tempDir, "id.jpg", "bytes")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"confidence": 0.5}`))
	}))
	defer server.Close()

	extractor := NewHTTPExtractor(server.URL, fastClient(2))
	result, err := extractor.Extract(path, "unknown")
	require.NoError(t, err)
	require.NotNil(t, result.Fields)
	assert.Empty(t, result.Fields)
}

// TestHTTPClient_UnreachableService verifies connection failures surface as
// capability errors after retries
func TestHTTPClient_UnreachableService(t *testing.T) {
	tempDir := t.TempDir()
	path := writeTestFile(t, tempDir, "id.jpg", "bytes")

	// A server that is already closed refuses connections
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	classifier := NewHTTPClassifier(url, fastClient(2))
	_, err := classifier.Classify(path)
	require.Error(t, err)
	assert.True(t, lib.IsCategory(err, lib.CategoryCapability))
}

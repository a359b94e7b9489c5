package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/veridoc/veridoc/internal/lib"
)

// ClassificationResult is the outcome of a classification capability call.
type ClassificationResult struct {
	DocumentType     string             `json:"document_type"`
	Confidence       float64            `json:"confidence"`
	Categories       []string           `json:"categories,omitempty"`
	RawProbabilities map[string]float64 `json:"raw_probabilities,omitempty"`
}

// Classifier determines the document type of a stored file.
type Classifier interface {
	Classify(filePath string) (*ClassificationResult, error)
}

// HTTPClassifier calls a remote classification capability over HTTP.
type HTTPClassifier struct {
	url    string
	client *HTTPClient
}

// NewHTTPClassifier creates a classifier backed by the given endpoint URL
func NewHTTPClassifier(url string, client *HTTPClient) *HTTPClassifier {
	return &HTTPClassifier{url: url, client: client}
}

// Classify uploads the file as multipart form data and decodes the
// capability's JSON response.
func (c *HTTPClassifier) Classify(filePath string) (*ClassificationResult, error) {
	if c.url == "" {
		return nil, lib.ErrMissingCapabilityURL("classifier")
	}

	resp, err := postFileMultipart(c.client, c.url, filePath)
	if err != nil {
		return nil, lib.ErrCapabilityUnavailable("classifier", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, capabilityRejection("classifier", resp)
	}

	var result ClassificationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, lib.ErrCapabilityRejected("classifier", resp.StatusCode,
			fmt.Sprintf("invalid response body: %v", err))
	}
	if result.DocumentType == "" {
		return nil, lib.ErrCapabilityRejected("classifier", resp.StatusCode,
			"response missing document_type")
	}
	return &result, nil
}

// postFileMultipart uploads a file under the "file" form field.
func postFileMultipart(client *HTTPClient, url string, filePath string) (*http.Response, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	return client.Post(url, writer.FormDataContentType(), buf.Bytes())
}

// capabilityRejection turns a non-2xx capability response into a typed error,
// including as much of the response body as is useful.
func capabilityRejection(service string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := string(bytes.TrimSpace(body))
	if detail == "" {
		detail = resp.Status
	}
	return lib.ErrCapabilityRejected(service, resp.StatusCode, detail)
}

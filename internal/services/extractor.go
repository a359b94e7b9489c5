package services

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/veridoc/veridoc/internal/lib"
)

// ExtractionResult is the outcome of an extraction capability call.
type ExtractionResult struct {
	Fields     map[string]string `json:"fields"`
	Confidence float64           `json:"confidence"`
}

// Extractor pulls structured fields out of a stored file.
type Extractor interface {
	Extract(filePath string, documentType string) (*ExtractionResult, error)
}

// HTTPExtractor calls a remote extraction capability over HTTP.
type HTTPExtractor struct {
	url    string
	client *HTTPClient
}

// NewHTTPExtractor creates an extractor backed by the given endpoint URL
func NewHTTPExtractor(url string, client *HTTPClient) *HTTPExtractor {
	return &HTTPExtractor{url: url, client: client}
}

// Extract uploads the file and decodes the extracted field map. The document
// type from classification is passed as a query parameter so the capability
// can pick a field schema.
func (e *HTTPExtractor) Extract(filePath string, documentType string) (*ExtractionResult, error) {
	if e.url == "" {
		return nil, lib.ErrMissingCapabilityURL("extractor")
	}

	endpoint := e.url
	if documentType != "" {
		query := url.Values{"document_type": {documentType}}
		endpoint = e.url + "?" + query.Encode()
	}

	resp, err := postFileMultipart(e.client, endpoint, filePath)
	if err != nil {
		return nil, lib.ErrCapabilityUnavailable("extractor", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, capabilityRejection("extractor", resp)
	}

	var result ExtractionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, lib.ErrCapabilityRejected("extractor", resp.StatusCode,
			fmt.Sprintf("invalid response body: %v", err))
	}
	if result.Fields == nil {
		result.Fields = map[string]string{}
	}
	return &result, nil
}

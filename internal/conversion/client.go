// Package conversion talks to the external document converter. The converter
// is consumed as an opaque gateway: raw editor content in, display HTML out,
// and display HTML in, document bytes out.
package conversion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Converter is the conversion gateway seen by the rest of the service.
type Converter interface {
	// ToDisplay normalizes raw editor content (flat OOXML) into display HTML.
	ToDisplay(ctx context.Context, raw string) (string, error)
	// ToDocument renders display HTML into a document file, embedding the
	// given custom properties (session id, token) into it.
	ToDocument(ctx context.Context, html string, properties map[string]string) ([]byte, error)
}

// Client implements Converter against the converter service's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// NewClient creates a converter client for the given base URL.
func NewClient(baseURL string, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     log,
	}
}

type toDisplayRequest struct {
	Content string `json:"content"`
}

type toDisplayResponse struct {
	Success bool   `json:"success"`
	HTML    string `json:"html"`
	Message string `json:"message"`
}

type toDocumentRequest struct {
	HTML       string            `json:"html"`
	Properties map[string]string `json:"properties,omitempty"`
}

type toDocumentResponse struct {
	Success  bool   `json:"success"`
	Document string `json:"document"` // base64
	Message  string `json:"message"`
}

// ToDisplay converts raw OOXML into display HTML.
func (c *Client) ToDisplay(ctx context.Context, raw string) (string, error) {
	var out toDisplayResponse
	if err := c.post(ctx, "/convert/ooxml-to-html", toDisplayRequest{Content: raw}, &out); err != nil {
		return "", err
	}
	if !out.Success {
		return "", fmt.Errorf("converter: %s", out.Message)
	}
	return out.HTML, nil
}

// ToDocument converts display HTML into document bytes with embedded properties.
func (c *Client) ToDocument(ctx context.Context, html string, properties map[string]string) ([]byte, error) {
	var out toDocumentResponse
	if err := c.post(ctx, "/convert/html-to-docx", toDocumentRequest{HTML: html, Properties: properties}, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, fmt.Errorf("converter: %s", out.Message)
	}
	doc, err := base64.StdEncoding.DecodeString(out.Document)
	if err != nil {
		return nil, fmt.Errorf("converter: decode document: %w", err)
	}
	return doc, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("converter: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("converter: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("converter: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("converter: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Warn("converter returned non-OK status",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("converter: status %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("converter: decode response: %w", err)
	}
	return nil
}

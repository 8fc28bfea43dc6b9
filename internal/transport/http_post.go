package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/inletmail/inlet/internal/models"
)

// HTTPPost delivers payloads with a blocking POST to the rule's destination
// URL. Any 2xx or 3xx response is a success; everything else, including
// connection-level failures, surfaces as a transport error. Timeouts are the
// client's responsibility.
type HTTPPost struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPPost creates a new HTTPPost transport.
func NewHTTPPost(client *http.Client, logger *slog.Logger) *HTTPPost {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPost{client: client, logger: logger}
}

// Kind returns the transport identifier.
func (t *HTTPPost) Kind() models.TransportKind {
	return models.TransportHTTPPost
}

// Deliver posts the payload form-encoded, switching to multipart/form-data
// with file fields when attachments are present.
func (t *HTTPPost) Deliver(ctx context.Context, mapping *models.Mapping, fields Fields) error {
	var req *http.Request
	var err error
	if len(fields.Attachments) > 0 {
		req, err = t.multipartRequest(ctx, mapping.Destination, fields)
	} else {
		req, err = t.formRequest(ctx, mapping.Destination, fields)
	}
	if err != nil {
		return &Error{Kind: t.Kind(), Err: err}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return &Error{Kind: t.Kind(), Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return &Error{Kind: t.Kind(), Err: fmt.Errorf("unexpected response %s from %s", resp.Status, mapping.Destination)}
	}

	if t.logger != nil {
		t.logger.Debug("webhook delivered",
			slog.String("destination", mapping.Destination),
			slog.Int("status", resp.StatusCode))
	}
	return nil
}

func (t *HTTPPost) formRequest(ctx context.Context, destination string, fields Fields) (*http.Request, error) {
	form := url.Values{}
	for key, value := range flatten(fields) {
		form.Set(key, value)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

func (t *HTTPPost) multipartRequest(ctx context.Context, destination string, fields Fields) (*http.Request, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for key, value := range flatten(fields) {
		if err := writer.WriteField(key, value); err != nil {
			return nil, err
		}
	}
	for i, att := range fields.Attachments {
		part, err := writer.CreateFormFile(fmt.Sprintf("attachments[%d]", i), att.Filename)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(att.Read()); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}

// flatten renders the scalar payload fields, header values nested under
// headers[name] keys.
func flatten(fields Fields) map[string]string {
	out := map[string]string{
		"subject": fields.Subject,
		"to":      fields.To,
		"from":    fields.From,
		"body":    fields.Body,
		"html":    fields.HTML,
		"emails":  fields.Emails,
	}
	for name, value := range fields.Headers {
		out["headers["+name+"]"] = value
	}
	return out
}

package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/llm"
)

var _ llm.Extractor = (*Client)(nil)

// Extract sends the document at path with the extraction prompt and returns
// the model's raw answer. The format whitelist and the credential are checked
// before any document bytes leave the process.
func (c *Client) Extract(ctx context.Context, path string) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	if err := llm.CheckSupported(path); err != nil {
		c.logger.Warn("llm.extract.unsupported", "req_id", rid, "ext", filepath.Ext(path))
		return "", err
	}
	if c.cfg.APIKey == "" {
		return "", common.NewAppError(common.CodeConfiguration, "extraction API key is not configured", common.ErrNotConfigured)
	}
	if err := c.verify(ctx); err != nil {
		return "", err
	}

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"file", filepath.Base(path),
		"inline_image", llm.IsImage(path),
	)

	part, err := c.documentPart(ctx, path)
	if err != nil {
		c.logger.Error("llm.extract.upload_error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", extractionFailed(err)
	}

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"messages": []map[string]any{
			{"role": "user", "content": []map[string]any{
				part,
				{"type": "text", "text": llm.ExtractionPrompt},
			}},
		},
	}

	raw, err := llm.SendJSON(ctx, c.http, c.endpoint("/chat/completions"), body, c.authHeaders(), c.logger)
	if err != nil {
		c.logger.Error("llm.extract.http_error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", extractionFailed(err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.extract.decode_error", "req_id", rid, "error", err, "raw_bytes", len(raw))
		return "", extractionFailed(fmt.Errorf("decode chat completion: %w", err))
	}
	if len(cc.Choices) == 0 {
		return "", extractionFailed(errors.New("model returned no choices"))
	}

	content := cc.Choices[0].Message.Content
	c.logger.Info("llm.extract.done",
		"req_id", rid,
		"answer_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

// verify lists models once per process to catch a rejected key before any
// document is sent. Only success is cached.
func (c *Client) verify(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.verified {
		return nil
	}

	pctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(pctx, http.MethodGet, c.endpoint("/models"), nil)
	if err != nil {
		return extractionFailed(err)
	}
	for k, v := range c.authHeaders() {
		req.Header.Set(k, v)
	}

	_, err = llm.Do(c.http, req, c.logger)
	var se *llm.StatusError
	switch {
	case err == nil:
		c.verified = true
		c.logger.Info("llm.probe.ok", "model", c.cfg.Model)
		return nil
	case errors.As(err, &se) && (se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden):
		c.logger.Error("llm.probe.rejected", "status", se.Status)
		return common.NewAppError(common.CodeConfiguration,
			"extraction API key was rejected: "+se.Message, fmt.Errorf("%w: %w", common.ErrAuthentication, err))
	default:
		c.logger.Error("llm.probe.error", "error", err)
		return common.NewAppError(common.CodeExtraction, "could not reach extraction provider: "+err.Error(), err)
	}
}

// documentPart builds the chat content part for the document. Images travel
// inline as data URLs; everything else is uploaded first and referenced by id.
func (c *Client) documentPart(ctx context.Context, path string) (map[string]any, error) {
	if llm.IsImage(path) {
		dataURL, _, err := llm.ReadAsDataURL(path)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": dataURL},
		}, nil
	}
	fileID, err := c.uploadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type": "file",
		"file": map[string]any{"file_id": fileID},
	}, nil
}

func (c *Client) uploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", "user_data"); err != nil {
		return "", err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
	h.Set("Content-Type", contentType(path))
	fw, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/files"), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range c.authHeaders() {
		req.Header.Set(k, v)
	}
	raw, err := llm.Do(c.http, req, c.logger)
	if err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.ID == "" {
		return "", fmt.Errorf("file upload returned no id: %s", strings.TrimSpace(string(raw)))
	}
	return out.ID, nil
}

func (c *Client) endpoint(p string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + p
}

func (c *Client) authHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
}

func contentType(path string) string {
	if mt := constants.MimeTypeFor(filepath.Ext(path)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

// extractionFailed wraps a provider or transport failure, keeping its message.
func extractionFailed(err error) error {
	var ae *common.AppError
	if errors.As(err, &ae) {
		return err
	}
	return common.NewAppError(common.CodeExtraction, "extraction provider failed: "+err.Error(), err)
}

package cmsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"sitecms/internal/content"
)

var (
	ErrMissingEndpoint   = errors.New("missing edge endpoint URL")
	ErrMissingCredential = errors.New("missing admin key")
)

// RemoteWriteError is returned when the edge service rejects a save.
type RemoteWriteError struct {
	Status  int
	Message string
}

func (e *RemoteWriteError) Error() string {
	return e.Message
}

// SaveOptions addresses a save at an edge service.
type SaveOptions struct {
	EndpointBase  string
	Credential    string
	CommitMessage string
}

type saveRequest struct {
	CMS           content.Document `json:"cms"`
	CommitMessage string           `json:"commitMessage"`
}

// Save sends doc as a full replacement to the edge service. On success the
// sent document, stamped with the server's updatedAt, becomes the in-memory
// and cached copy, and the server's response payload is returned.
func (c *Coordinator) Save(ctx context.Context, doc any, opts SaveOptions) (map[string]any, error) {
	base := strings.TrimSuffix(strings.TrimSpace(opts.EndpointBase), "/")
	credential := strings.TrimSpace(opts.Credential)
	if base == "" {
		return nil, ErrMissingEndpoint
	}
	if credential == "" {
		return nil, ErrMissingCredential
	}

	merged := content.Merge(doc)
	message := opts.CommitMessage
	if message == "" {
		message = "cms: update " + content.Timestamp(c.now())
	}
	body, err := json.Marshal(saveRequest{CMS: merged, CommitMessage: message})
	if err != nil {
		return nil, fmt.Errorf("encode save request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/cms", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send save request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read save response: %w", err)
	}
	payload := decodeSaveResponse(raw)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message, _ := payload["error"].(string)
		if message == "" {
			message = fmt.Sprintf("Save failed (%d)", resp.StatusCode)
		}
		return nil, &RemoteWriteError{Status: resp.StatusCode, Message: message}
	}

	if updatedAt, ok := payload["updatedAt"].(string); ok && updatedAt != "" {
		merged.UpdatedAt = updatedAt
	}
	c.adopt(merged.Clone())
	c.cache.Write(ctx, merged)
	c.logger.Info("document saved",
		zap.String("updatedAt", merged.UpdatedAt),
		zap.Any("commitSha", payload["commitSha"]),
	)
	return payload, nil
}

// decodeSaveResponse returns the response object. Valid JSON that is not an
// object yields an empty payload; only an unparseable body becomes the error
// text.
func decodeSaveResponse(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return map[string]any{"error": string(raw)}
	}
	payload, ok := decoded.(map[string]any)
	if !ok || payload == nil {
		return map[string]any{}
	}
	return payload
}

package docstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultGitHubAPI  = "https://api.github.com"
	githubAPIVersion  = "2022-11-28"
	githubHTTPTimeout = 30 * time.Second
)

// GitHubConfig locates the document inside a GitHub repository.
type GitHubConfig struct {
	BaseURL string
	Token   string
	Owner   string
	Repo    string
	Branch  string
	Path    string
}

// GitHub reads and writes the document through the repository Contents API.
// The file's blob sha is the revision token; GitHub refuses a PUT whose sha
// is stale.
type GitHub struct {
	cfg        GitHubConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewGitHub(cfg GitHubConfig, httpClient *http.Client, logger *zap.Logger) *GitHub {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGitHubAPI
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: githubHTTPTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitHub{cfg: cfg, httpClient: httpClient, logger: logger}
}

type githubContent struct {
	SHA     string `json:"sha"`
	Content string `json:"content"`
}

type githubPutRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch"`
}

type githubPutResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

func (g *GitHub) contentsURL() string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		g.cfg.BaseURL,
		url.PathEscape(g.cfg.Owner),
		url.PathEscape(g.cfg.Repo),
		strings.TrimPrefix(g.cfg.Path, "/"),
	)
}

func (g *GitHub) Read(ctx context.Context) (Snapshot, error) {
	endpoint := g.contentsURL() + "?ref=" + url.QueryEscape(g.cfg.Branch)
	status, body, err := g.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Snapshot{}, err
	}
	if status == http.StatusNotFound {
		return Snapshot{}, fmt.Errorf("%w: GitHub read failed (%d): %s", ErrNotFound, status, body)
	}
	if status != http.StatusOK {
		return Snapshot{}, fmt.Errorf("GitHub read failed (%d): %s", status, body)
	}

	var payload githubContent
	if err := json.Unmarshal(body, &payload); err != nil {
		return Snapshot{}, fmt.Errorf("decode GitHub contents response: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(payload.Content, "\n", ""))
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode GitHub file content: %w", err)
	}
	return decodeSnapshot(raw, payload.SHA)
}

func (g *GitHub) Write(ctx context.Context, req WriteRequest) (Commit, error) {
	payload, err := json.Marshal(githubPutRequest{
		Message: req.Message,
		Content: base64.StdEncoding.EncodeToString(req.Content),
		SHA:     req.Revision,
		Branch:  g.cfg.Branch,
	})
	if err != nil {
		return Commit{}, fmt.Errorf("encode GitHub write: %w", err)
	}

	status, body, err := g.do(ctx, http.MethodPut, g.contentsURL(), payload)
	if err != nil {
		return Commit{}, err
	}
	if status == http.StatusConflict || (status == http.StatusUnprocessableEntity && bytes.Contains(body, []byte("does not match"))) {
		return Commit{}, fmt.Errorf("%w: GitHub write failed (%d): %s", ErrConflict, status, body)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return Commit{}, fmt.Errorf("GitHub write failed (%d): %s", status, body)
	}

	var result githubPutResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return Commit{}, fmt.Errorf("decode GitHub write response: %w", err)
	}
	return Commit{ID: result.Commit.SHA, Revision: result.Content.SHA}, nil
}

func (g *GitHub) do(ctx context.Context, method, endpoint string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create GitHub request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", githubAPIVersion)
	req.Header.Set("Content-Type", "application/json")

	g.logger.Debug("github request", zap.String("method", method), zap.String("url", endpoint))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("GitHub request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read GitHub response: %w", err)
	}
	return resp.StatusCode, body, nil
}

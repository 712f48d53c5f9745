package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/compose-network/bonsai-relay/x/bonsai"
)

const (
	apiKeyHeader  = "x-api-key"
	versionHeader = "x-risc0-version"

	// DefaultVersion is sent in the version header when none is configured.
	DefaultVersion = "0.19.1"
)

// HTTPClient implements bonsai.Client over the Bonsai REST API.
type HTTPClient struct {
	baseURL    *url.URL
	apiKey     string
	version    string
	httpClient *http.Client
	log        zerolog.Logger
}

// Option customizes an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		if c != nil {
			h.httpClient = c
		}
	}
}

// WithVersion sets the x-risc0-version header value.
func WithVersion(v string) Option {
	return func(h *HTTPClient) {
		if v != "" {
			h.version = v
		}
	}
}

// NewHTTPClient constructs a client for the given base URL. An empty apiKey
// sends unauthenticated requests.
func NewHTTPClient(rawURL, apiKey string, log zerolog.Logger, opts ...Option) (*HTTPClient, error) {
	if rawURL == "" {
		return nil, errors.New("base URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid bonsai base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid bonsai base URL %q: scheme must be http or https", rawURL)
	}

	c := &HTTPClient{
		baseURL:    parsed,
		apiKey:     apiKey,
		version:    DefaultVersion,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log.With().Str("component", "bonsai-client").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.log.Debug().
		Str("base_url", rawURL).
		Bool("authenticated", apiKey != "").
		Dur("timeout", c.httpClient.Timeout).
		Msg("Bonsai client initialized")

	return c, nil
}

type uploadRes struct {
	URL  string `json:"url"`
	UUID string `json:"uuid"`
}

type createRes struct {
	UUID string `json:"uuid"`
}

type snarkReq struct {
	SessionID string `json:"session_id"`
}

// UploadImage asks for a presigned upload URL for imageID and PUTs the ELF
// there. A 204 reply means the image is already stored: bonsai.ErrImageExists.
func (c *HTTPClient) UploadImage(ctx context.Context, imageID string, elf []byte) error {
	if imageID == "" {
		return errors.New("image id is required")
	}

	endpoint := c.buildURL("images", "upload", imageID)
	res, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("request image upload: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNoContent {
		c.log.Debug().Str("image_id", imageID).Msg("image already present")
		return bonsai.ErrImageExists
	}
	if err := checkStatus(res); err != nil {
		return err
	}

	var up uploadRes
	if err := json.NewDecoder(res.Body).Decode(&up); err != nil {
		return fmt.Errorf("decode image upload response: %w", err)
	}
	if err := c.put(ctx, up.URL, elf); err != nil {
		return fmt.Errorf("upload image %s: %w", imageID, err)
	}

	c.log.Info().
		Str("image_id", imageID).
		Int("elf_bytes", len(elf)).
		Msg("image uploaded")
	return nil
}

// UploadInput stores input and returns its id.
func (c *HTTPClient) UploadInput(ctx context.Context, input []byte) (string, error) {
	res, err := c.do(ctx, http.MethodGet, c.buildURL("inputs", "upload"), nil)
	if err != nil {
		return "", fmt.Errorf("request input upload: %w", err)
	}
	defer res.Body.Close()

	if err := checkStatus(res); err != nil {
		return "", err
	}

	var up uploadRes
	if err := json.NewDecoder(res.Body).Decode(&up); err != nil {
		return "", fmt.Errorf("decode input upload response: %w", err)
	}
	if _, err := uuid.Parse(up.UUID); err != nil {
		return "", fmt.Errorf("input upload returned invalid id %q: %w", up.UUID, err)
	}
	if err := c.put(ctx, up.URL, input); err != nil {
		return "", fmt.Errorf("upload input: %w", err)
	}

	c.log.Debug().Str("input_id", up.UUID).Int("input_bytes", len(input)).Msg("input uploaded")
	return up.UUID, nil
}

// CreateSession starts a proving (or execute-only) session.
func (c *HTTPClient) CreateSession(ctx context.Context, req bonsai.SessionCreate) (string, error) {
	if req.Assumptions == nil {
		req.Assumptions = []string{}
	}
	id, err := c.create(ctx, c.buildURL("sessions", "create"), req)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	c.log.Info().
		Str("session_id", id).
		Str("image_id", req.Image).
		Bool("execute_only", req.ExecuteOnly).
		Msg("session created")
	return id, nil
}

// SessionStatus fetches the state of a session.
func (c *HTTPClient) SessionStatus(ctx context.Context, sessionID string) (bonsai.SessionStatus, error) {
	var st bonsai.SessionStatus
	if err := validateID(sessionID); err != nil {
		return st, err
	}
	if err := c.getJSON(ctx, c.buildURL("sessions", "status", sessionID), &st); err != nil {
		return st, fmt.Errorf("session status: %w", err)
	}
	return st, nil
}

// ExecOnlyJournal fetches the raw journal of an execute-only session.
func (c *HTTPClient) ExecOnlyJournal(ctx context.Context, sessionID string) ([]byte, error) {
	if err := validateID(sessionID); err != nil {
		return nil, err
	}
	res, err := c.do(ctx, http.MethodGet, c.buildURL("sessions", "exec_only_journal", sessionID), nil)
	if err != nil {
		return nil, fmt.Errorf("get journal: %w", err)
	}
	defer res.Body.Close()

	if err := checkStatus(res); err != nil {
		return nil, err
	}
	journal, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return journal, nil
}

// CreateSnark starts Groth16 wrapping of a finished session.
func (c *HTTPClient) CreateSnark(ctx context.Context, sessionID string) (string, error) {
	if err := validateID(sessionID); err != nil {
		return "", err
	}
	id, err := c.create(ctx, c.buildURL("snark", "create"), snarkReq{SessionID: sessionID})
	if err != nil {
		return "", fmt.Errorf("create snark: %w", err)
	}

	c.log.Info().Str("session_id", sessionID).Str("snark_id", id).Msg("snark job created")
	return id, nil
}

// SnarkStatus fetches the state of a SNARK job.
func (c *HTTPClient) SnarkStatus(ctx context.Context, snarkID string) (bonsai.SnarkStatus, error) {
	var st bonsai.SnarkStatus
	if err := validateID(snarkID); err != nil {
		return st, err
	}
	if err := c.getJSON(ctx, c.buildURL("snark", "status", snarkID), &st); err != nil {
		return st, fmt.Errorf("snark status: %w", err)
	}
	return st, nil
}

// Ping succeeds once the service answers with anything below 500.
func (c *HTTPClient) Ping(ctx context.Context) error {
	res, err := c.do(ctx, http.MethodGet, c.buildURL("version"), nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("bonsai returned %s", res.Status)
	}
	return nil
}

func (c *HTTPClient) create(ctx context.Context, endpoint string, body any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	res, err := c.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if err := checkStatus(res); err != nil {
		return "", err
	}

	var out createRes
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if err := validateID(out.UUID); err != nil {
		return "", err
	}
	return out.UUID, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, endpoint string, out any) error {
	res, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if err := checkStatus(res); err != nil {
		return err
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do sends an authenticated request to the API.
func (c *HTTPClient) do(ctx context.Context, method, endpoint string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("prepare request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	req.Header.Set(versionHeader, c.version)

	res, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("endpoint", endpoint).Msg("bonsai request failed")
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	return res, nil
}

// put uploads a payload to a presigned URL. No API headers are attached.
func (c *HTTPClient) put(ctx context.Context, target string, body []byte) error {
	if target == "" {
		return errors.New("empty upload url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("prepare upload: %w", err)
	}
	req.ContentLength = int64(len(body))

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("put upload: %w", err)
	}
	defer res.Body.Close()

	return checkStatus(res)
}

func (c *HTTPClient) buildURL(elem ...string) string {
	clone := *c.baseURL
	clone.Path = path.Join(append([]string{c.baseURL.Path}, elem...)...)
	return clone.String()
}

func checkStatus(res *http.Response) error {
	if res.StatusCode < http.StatusBadRequest {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return fmt.Errorf("bonsai returned %s: %s", res.Status, string(msg))
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid job id %q: %w", id, err)
	}
	return nil
}

var _ bonsai.Client = (*HTTPClient)(nil)

package neon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultBaseURL is the public Neon control-plane endpoint.
const DefaultBaseURL = "https://console.neon.tech/api/v2"

// APIError is a non-2xx answer from the Neon API. The executor turns it into
// an error payload for the model instead of failing the chat turn.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("neon api error: status %d, body: %s", e.StatusCode, e.Body)
}

// Client is a thin typed client for the Neon control-plane REST API. The API
// key is passed per call because every chat request carries its own key.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: baseURL,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, apiKey, method, path string, query url.Values, payload any) (map[string]any, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewBuffer(raw)
	}

	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("neon request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	result := map[string]any{}
	if len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, &result); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return result, nil
}

// --- Projects ---

type CreateProjectParams struct {
	Name                  *string `json:"name,omitempty"`
	RegionId              *string `json:"region_id,omitempty"`
	PgVersion             *string `json:"pg_version,omitempty"`
	AutoscalingLimitMinCu *int    `json:"autoscaling_limit_min_cu,omitempty"`
	AutoscalingLimitMaxCu *int    `json:"autoscaling_limit_max_cu,omitempty"`
}

func (c *Client) ListProjects(ctx context.Context, apiKey string) (map[string]any, error) {
	return c.do(ctx, apiKey, http.MethodGet, "/projects", nil, nil)
}

func (c *Client) GetProject(ctx context.Context, apiKey, projectId string) (map[string]any, error) {
	return c.do(ctx, apiKey, http.MethodGet, "/projects/"+projectId, nil, nil)
}

func (c *Client) CreateProject(ctx context.Context, apiKey string, params CreateProjectParams) (map[string]any, error) {
	payload := map[string]any{"project": params}
	return c.do(ctx, apiKey, http.MethodPost, "/projects", nil, payload)
}

func (c *Client) DeleteProject(ctx context.Context, apiKey, projectId string) (map[string]any, error) {
	return c.do(ctx, apiKey, http.MethodDelete, "/projects/"+projectId, nil, nil)
}

// --- Connection URI ---

type ConnectionURIParams struct {
	ProjectId    string
	DatabaseName string // defaults to "neondb"
	RoleName     string // defaults to "neondb_owner"
	BranchId     *string
	EndpointId   *string
	Pooled       *bool
}

func (c *Client) GetConnectionURI(ctx context.Context, apiKey string, params ConnectionURIParams) (map[string]any, error) {
	if params.DatabaseName == "" {
		params.DatabaseName = "neondb"
	}
	if params.RoleName == "" {
		params.RoleName = "neondb_owner"
	}

	query := url.Values{}
	query.Set("database_name", params.DatabaseName)
	query.Set("role_name", params.RoleName)
	if params.BranchId != nil {
		query.Set("branch_id", *params.BranchId)
	}
	if params.EndpointId != nil {
		query.Set("endpoint_id", *params.EndpointId)
	}
	if params.Pooled != nil {
		query.Set("pooled", strconv.FormatBool(*params.Pooled))
	}

	return c.do(ctx, apiKey, http.MethodGet, "/projects/"+params.ProjectId+"/connection_uri", query, nil)
}

// --- Branches ---

type CreateBranchParams struct {
	ParentId     *string
	Name         *string
	EndpointType *string // "read-write" or "read-only"
}

func (c *Client) CreateBranch(ctx context.Context, apiKey, projectId string, params CreateBranchParams) (map[string]any, error) {
	branch := map[string]any{}
	if params.ParentId != nil {
		branch["parent_id"] = *params.ParentId
	}
	if params.Name != nil {
		branch["name"] = *params.Name
	}
	payload := map[string]any{"branch": branch}
	if params.EndpointType != nil {
		payload["endpoints"] = []map[string]any{{"type": *params.EndpointType}}
	}
	return c.do(ctx, apiKey, http.MethodPost, "/projects/"+projectId+"/branches", nil, payload)
}

func (c *Client) ListBranches(ctx context.Context, apiKey, projectId string) (map[string]any, error) {
	return c.do(ctx, apiKey, http.MethodGet, "/projects/"+projectId+"/branches", nil, nil)
}

func (c *Client) GetBranch(ctx context.Context, apiKey, projectId, branchId string) (map[string]any, error) {
	return c.do(ctx, apiKey, http.MethodGet, "/projects/"+projectId+"/branches/"+branchId, nil, nil)
}

func (c *Client) UpdateBranch(ctx context.Context, apiKey, projectId, branchId string, name *string) (map[string]any, error) {
	branch := map[string]any{}
	if name != nil {
		branch["name"] = *name
	}
	payload := map[string]any{"branch": branch}
	return c.do(ctx, apiKey, http.MethodPatch, "/projects/"+projectId+"/branches/"+branchId, nil, payload)
}

func (c *Client) DeleteBranch(ctx context.Context, apiKey, projectId, branchId string) (map[string]any, error) {
	return c.do(ctx, apiKey, http.MethodDelete, "/projects/"+projectId+"/branches/"+branchId, nil, nil)
}

// --- Users ---

func (c *Client) CurrentUser(ctx context.Context, apiKey string) (map[string]any, error) {
	return c.do(ctx, apiKey, http.MethodGet, "/users/me", nil, nil)
}

package syncapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"resty.dev/v3"

	"github.com/ventilearn/ventilearn/internal/progress"
)

// DefaultTimeout bounds one network attempt; an attempt that does not
// resolve in time is treated as a NetworkError.
const DefaultTimeout = 10 * time.Second

// TokenProvider supplies the bearer token attached to every request.
// Token acquisition itself belongs to the auth collaborator, not this core.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenProvider is a TokenProvider returning a fixed token.
type StaticTokenProvider string

func (p StaticTokenProvider) Token(context.Context) (string, error) {
	return string(p), nil
}

// ProgressUpdate is the per-item wire shape for PUT /progress and the items
// of POST /progress/sync.
type ProgressUpdate struct {
	ClientEventID   string            `json:"clientEventId,omitempty"`
	ModuleID        string            `json:"moduleId"`
	LessonID        string            `json:"lessonId"`
	PositionSeconds *int              `json:"positionSeconds,omitempty"`
	Progress        float64           `json:"progress"`
	IsCompleted     bool              `json:"isCompleted"`
	TimeSpentDelta  int               `json:"timeSpentDelta,omitempty"`
	Attempts        *int              `json:"attempts,omitempty"`
	Score           *float64          `json:"score,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	ClientUpdatedAt time.Time         `json:"clientUpdatedAt"`
}

// ModuleSummary carries the module-level fields the server recomputed while
// merging an update.
type ModuleSummary struct {
	ModuleID         string     `json:"moduleId"`
	TimeSpentSeconds int        `json:"timeSpentSeconds"`
	Score            *float64   `json:"score,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// UpdateResponse is the merged record returned by PUT /progress.
type UpdateResponse struct {
	progress.LessonProgress
	Module *ModuleSummary `json:"module,omitempty"`
}

// MergeStatus reports, per bulk item, whether the server merged it or kept
// its own newer record.
type MergeStatus struct {
	LessonID string `json:"lessonId"`
	Merged   bool   `json:"merged"`
}

// BulkResponse is the result of POST /progress/sync.
type BulkResponse struct {
	Merged  []MergeStatus             `json:"merged"`
	Records []progress.LessonProgress `json:"records"`
}

// Client talks to the server of record. It owns no retry policy: callers
// decide what to do with the classified error.
type Client struct {
	httpClient *resty.Client
	tokens     TokenProvider
	learnerID  string
}

// NewClient creates a sync client for the given base URL. A zero timeout
// falls back to DefaultTimeout.
func NewClient(baseURL string, tokens TokenProvider, learnerID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := resty.New()
	httpClient.SetBaseURL(baseURL)
	httpClient.SetTimeout(timeout)
	httpClient.SetHeader("Content-Type", "application/json")

	return &Client{
		httpClient: httpClient,
		tokens:     tokens,
		learnerID:  learnerID,
	}
}

func (c *Client) Close() error {
	return c.httpClient.Close()
}

func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	req := c.httpClient.R().SetContext(ctx)
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("tokens.Token() > %w", err)
		}
		if token != "" {
			req.SetHeader("Authorization", "Bearer "+token)
		}
	}
	if c.learnerID != "" {
		req.SetHeader("X-Learner-ID", c.learnerID)
	}
	return req, nil
}

// FetchProgress returns the server's progress records, optionally filtered
// by module and lesson. An empty result is an empty slice, not an error.
func (c *Client) FetchProgress(ctx context.Context, moduleID, lessonID string) ([]progress.LessonProgress, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	if moduleID != "" {
		req.SetQueryParam("moduleId", moduleID)
	}
	if lessonID != "" {
		req.SetQueryParam("lessonId", lessonID)
	}

	var records []progress.LessonProgress
	res, err := req.SetResult(&records).Get("/progress")
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	if res.IsError() {
		return nil, c.classify(res, lessonID)
	}
	return records, nil
}

// SendSingle attempts one round trip to upsert one lesson's progress.
func (c *Client) SendSingle(ctx context.Context, update ProgressUpdate) (UpdateResponse, error) {
	if update.LessonID == "" {
		return UpdateResponse{}, &ValidationError{Field: "lessonId", Reason: "is required"}
	}
	if update.ModuleID == "" {
		return UpdateResponse{}, &ValidationError{Field: "moduleId", Reason: "is required and could not be resolved"}
	}

	req, err := c.request(ctx)
	if err != nil {
		return UpdateResponse{}, err
	}

	var result UpdateResponse
	res, err := req.SetBody(update).SetResult(&result).Put("/progress")
	if err != nil {
		return UpdateResponse{}, &NetworkError{Err: err}
	}
	if res.IsError() {
		return UpdateResponse{}, c.classify(res, update.LessonID)
	}
	return result, nil
}

// SendBulk delivers an ordered batch of pending updates in one round trip.
// Item order is preserved so per-key replay matches enqueue order.
func (c *Client) SendBulk(ctx context.Context, updates []ProgressUpdate) (BulkResponse, error) {
	if len(updates) == 0 {
		return BulkResponse{}, nil
	}

	req, err := c.request(ctx)
	if err != nil {
		return BulkResponse{}, err
	}

	var result BulkResponse
	res, err := req.SetBody(updates).SetResult(&result).Post("/progress/sync")
	if err != nil {
		return BulkResponse{}, &NetworkError{Err: err}
	}
	if res.IsError() {
		return BulkResponse{}, c.classify(res, "")
	}
	return result, nil
}

// classify turns a non-2xx response into the error taxonomy, consuming
// either error envelope shape the server produces.
func (c *Client) classify(res *resty.Response, lessonID string) error {
	body := res.String()
	var envelope errorEnvelope
	_ = json.Unmarshal([]byte(body), &envelope)
	return classifyStatus(res.StatusCode(), lessonID, envelope.message(body))
}

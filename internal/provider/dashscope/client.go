package dashscope

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediaforge/internal/domain"
	"mediaforge/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("dashscope: api key is required")

const (
	imageEndpoint = "/services/aigc/image2image/image-synthesis"
	videoEndpoint = "/services/aigc/video-generation/video-synthesis"
	taskEndpoint  = "/tasks/"
)

// Options configures the DashScope async task client.
type Options struct {
	APIKey         string
	BaseURL        string
	ImageModel     string
	VideoModel     string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls against the DashScope asynchronous task API:
// one POST submits a generation task, one GET reads its status. Retrying and
// scheduling live in the polling engine, never here.
type Client struct {
	apiKey     string
	baseURL    string
	imageModel string
	videoModel string
	httpClient *http.Client
	logger     *infra.Logger
}

// SubmitRequest captures the provider-facing inputs for one generation task.
type SubmitRequest struct {
	Kind      domain.ResourceType
	Prompt    string
	SourceURL string
	Ratio     string
	Model     string // optional override of the configured model
}

type submitPayload struct {
	Model string `json:"model"`
	Input struct {
		Prompt   string `json:"prompt"`
		ImageURL string `json:"img_url,omitempty"`
	} `json:"input"`
	Parameters struct {
		Size string `json:"size,omitempty"`
	} `json:"parameters"`
}

type submitResponse struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

type taskResponse struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		VideoURL   string `json:"video_url"`
		Results    []struct {
			URL string `json:"url"`
		} `json:"results"`
		Message     string `json:"message"`
		SubmitTime  string `json:"submit_time"`
		TaskMetrics struct {
			Total     int `json:"TOTAL"`
			Succeeded int `json:"SUCCEEDED"`
		} `json:"task_metrics"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = "qwen-image-edit"
	}
	videoModel := strings.TrimSpace(opts.VideoModel)
	if videoModel == "" {
		videoModel = "wan2.2-i2v-flash"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		imageModel: imageModel,
		videoModel: videoModel,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Name identifies the provider in normalized job views.
func (c *Client) Name() string { return "dashscope" }

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Submit enqueues one generation task and returns the provider task id.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if !c.HasCredentials() {
		return "", ErrMissingAPIKey
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", domain.NewError(domain.KindValidation, "prompt is required")
	}
	source := strings.TrimSpace(req.SourceURL)
	if parsed, err := url.Parse(source); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", domain.NewError(domain.KindValidation, "source url must be absolute and provider-reachable")
	}

	var payload submitPayload
	payload.Model = strings.TrimSpace(req.Model)
	endpoint := c.baseURL + imageEndpoint
	if req.Kind == domain.ResourceVideo {
		endpoint = c.baseURL + videoEndpoint
		if payload.Model == "" {
			payload.Model = c.videoModel
		}
	} else if payload.Model == "" {
		payload.Model = c.imageModel
	}
	payload.Input.Prompt = prompt
	payload.Input.ImageURL = source
	payload.Parameters.Size = ratioToSize(req.Ratio)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("dashscope: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("dashscope: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-DashScope-Async", "enable")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", domain.WrapError(domain.KindProviderUnreachable, "provider request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.WrapError(domain.KindProviderUnreachable, "read provider response", err)
	}
	if resp.StatusCode >= 300 {
		return "", c.rejectionError(resp.StatusCode, raw)
	}

	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", domain.WrapError(domain.KindProviderRejected, "decode provider response", err)
	}
	if decoded.Code != "" {
		return "", c.codeError(resp.StatusCode, decoded.Code, decoded.Message)
	}
	taskID := strings.TrimSpace(decoded.Output.TaskID)
	if taskID == "" {
		return "", domain.NewError(domain.KindProviderRejected, "provider returned no task id")
	}
	c.logger.Debug().
		Str("model", payload.Model).
		Str("task_id", taskID).
		Str("request_id", decoded.RequestID).
		Msg("dashscope: task submitted")
	return taskID, nil
}

// PollOnce reads the current state of a task and normalizes it. It performs
// exactly one outbound call.
func (c *Client) PollOnce(ctx context.Context, taskID string) (*domain.ProviderJob, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, domain.NewError(domain.KindValidation, "task id is required")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+taskEndpoint+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, fmt.Errorf("dashscope: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.WrapError(domain.KindProviderUnreachable, "provider request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.WrapError(domain.KindProviderUnreachable, "read provider response", err)
	}
	if resp.StatusCode >= 300 {
		return nil, c.rejectionError(resp.StatusCode, raw)
	}

	var decoded taskResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, domain.WrapError(domain.KindProviderRejected, "decode provider response", err)
	}
	if decoded.Code != "" {
		return nil, c.codeError(resp.StatusCode, decoded.Code, decoded.Message)
	}

	job := &domain.ProviderJob{
		TaskID:      taskID,
		Provider:    c.Name(),
		Status:      normalizeStatus(decoded.Output.TaskStatus),
		ErrorDetail: strings.TrimSpace(decoded.Output.Message),
	}
	if t := decoded.Output.TaskMetrics.Total; t > 0 {
		job.Progress = float64(decoded.Output.TaskMetrics.Succeeded) / float64(t)
	}
	if v := strings.TrimSpace(decoded.Output.VideoURL); v != "" {
		job.Outputs = append(job.Outputs, v)
	}
	for _, res := range decoded.Output.Results {
		if u := strings.TrimSpace(res.URL); u != "" {
			job.Outputs = append(job.Outputs, u)
		}
	}
	if ts, err := time.Parse("2006-01-02 15:04:05.000", decoded.Output.SubmitTime); err == nil {
		job.CreatedAt = ts
	}
	return job, nil
}

// rejectionError maps a non-2xx provider response. Billing-limit conditions
// are forwarded verbatim instead of being swallowed into a generic failure.
func (c *Client) rejectionError(status int, raw []byte) error {
	var detail errorResponse
	_ = json.Unmarshal(raw, &detail)
	if detail.Message == "" {
		detail.Message = strings.TrimSpace(string(raw))
	}
	return c.codeError(status, detail.Code, detail.Message)
}

func (c *Client) codeError(status int, code, message string) error {
	kind := domain.KindProviderRejected
	if status == http.StatusPaymentRequired || isBillingCode(code) {
		kind = domain.KindProviderBillingLimit
	}
	if message == "" {
		message = "provider rejected the request"
	}
	return &domain.Error{
		Kind:           kind,
		Message:        message,
		ProviderStatus: status,
		ProviderCode:   code,
	}
}

func isBillingCode(code string) bool {
	switch code {
	case "Arrearage", "Throttling.AllocationQuota", "AllocationQuota.FreeTierOnly", "InsufficientBalance":
		return true
	}
	return false
}

func normalizeStatus(raw string) domain.JobStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING":
		return domain.JobStatusQueued
	case "RUNNING", "SUSPENDED":
		return domain.JobStatusRunning
	case "SUCCEEDED":
		return domain.JobStatusSucceeded
	case "FAILED":
		return domain.JobStatusFailed
	case "CANCELED":
		return domain.JobStatusCanceled
	default:
		return domain.JobStatusRunning
	}
}

func ratioToSize(ratio string) string {
	switch strings.TrimSpace(ratio) {
	case "1:1":
		return "1328*1328"
	case "16:9":
		return "1664*928"
	case "9:16":
		return "928*1664"
	case "4:3":
		return "1472*1140"
	case "3:4":
		return "1140*1472"
	default:
		return ""
	}
}

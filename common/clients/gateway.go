package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/docuforge/docuforge/common/config"
	"github.com/docuforge/docuforge/common/errdomain"
	"github.com/docuforge/docuforge/common/kvstore"
	"github.com/docuforge/docuforge/common/logger"
)

// KV key the bearer token is stored under.
const authTokenKey = "auth_token"

// ResponseKind selects how the response body is interpreted.
type ResponseKind int

const (
	ResponseJSON ResponseKind = iota
	ResponseBlob
	ResponseText
)

// Request describes one typed call to the backend.
type Request struct {
	Method       string
	Path         string
	Query        url.Values
	JSONBody     any
	Multipart    *Multipart
	Headers      map[string]string
	Timeout      time.Duration
	ResponseKind ResponseKind
	NoRetry      bool
}

// Multipart is a multipart/form-data body. An explicit Content-Type header
// is never set by the caller; the encoder owns the boundary.
type Multipart struct {
	Fields map[string]string
	Files  []MultipartFile
}

// MultipartFile is one file part.
type MultipartFile struct {
	Field   string
	Name    string
	Content []byte
}

// Response is a completed backend call.
type Response struct {
	Status int
	Body   []byte
}

// JSON unmarshals the body into out.
func (r *Response) JSON(out any) error {
	return json.Unmarshal(r.Body, out)
}

// Text returns the body as a string.
func (r *Response) Text() string { return string(r.Body) }

// Gateway issues typed HTTP calls to the processing backend with bearer
// auth, per-call timeouts and bounded retry.
type Gateway struct {
	baseURL     string
	client      *http.Client
	kv          kvstore.Store
	log         *logger.Logger
	maxAttempts int
	backoffBase time.Duration

	uploadTimeout time.Duration
	bulkTimeout   time.Duration
	pollInterval  time.Duration
	pollMaxTries  int

	// sleep is swapped in tests to observe the backoff schedule.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGateway creates a gateway from config.
func NewGateway(cfg config.APIConfig, kv kvstore.Store, log *logger.Logger) *Gateway {
	return &Gateway{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		client:        &http.Client{Timeout: 0},
		kv:            kv,
		log:           log,
		maxAttempts:   cfg.RetryAttempts,
		backoffBase:   cfg.RetryBase,
		uploadTimeout: cfg.UploadTimeout,
		bulkTimeout:   cfg.BulkTimeout,
		pollInterval:  cfg.PollInterval,
		pollMaxTries:  cfg.PollMaxTries,
		sleep:         sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do executes a request with the retry policy: up to maxAttempts attempts
// with exponential backoff, aborting immediately on 401/403 and on
// cancellation.
func (g *Gateway) Do(ctx context.Context, req Request) (*Response, error) {
	attempts := g.maxAttempts
	if req.NoRetry {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := g.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		kind := errdomain.KindOf(err)
		if kind == errdomain.KindAuthentication || kind == errdomain.KindAuthorization {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if !errdomain.IsRetriable(err) {
			return nil, err
		}
		if attempt == attempts {
			break
		}

		backoff := g.backoffBase * (1 << (attempt - 1))
		g.log.Warn("backend call failed, retrying",
			"path", req.Path, "attempt", attempt, "backoff", backoff, "error", err)
		if err := g.sleep(ctx, backoff); err != nil {
			return nil, errdomain.Wrap(errdomain.KindTimeout, "request cancelled", err)
		}
	}

	return nil, lastErr
}

func (g *Gateway) attempt(ctx context.Context, req Request) (*Response, error) {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, contentType, err := g.encodeBody(req)
	if err != nil {
		return nil, err
	}

	target := g.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(callCtx, req.Method, target, body)
	if err != nil {
		return nil, errdomain.Wrap(errdomain.KindNetwork, "build request", err)
	}

	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	g.attachAuth(ctx, httpReq)

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			return nil, errdomain.Wrap(errdomain.KindTimeout, fmt.Sprintf("%s %s timed out", req.Method, req.Path), err)
		}
		return nil, errdomain.Wrap(errdomain.KindNetwork, fmt.Sprintf("%s %s failed", req.Method, req.Path), err)
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errdomain.Wrap(errdomain.KindNetwork, "read response", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, g.statusError(req, httpResp.StatusCode, payload)
	}

	// A JSON endpoint answering with a non-JSON body (a proxy error page,
	// a truncated response) fails here instead of at each caller's
	// unmarshal.
	if req.ResponseKind == ResponseJSON && len(payload) > 0 && !gjson.ValidBytes(payload) {
		return nil, errdomain.Newf(errdomain.KindNetwork, "%s %s returned a malformed response", req.Method, req.Path)
	}

	return &Response{Status: httpResp.StatusCode, Body: payload}, nil
}

func (g *Gateway) encodeBody(req Request) (io.Reader, string, error) {
	switch {
	case req.Multipart != nil:
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		for field, value := range req.Multipart.Fields {
			if err := writer.WriteField(field, value); err != nil {
				return nil, "", errdomain.Wrap(errdomain.KindNetwork, "encode form field", err)
			}
		}
		for _, file := range req.Multipart.Files {
			part, err := writer.CreateFormFile(file.Field, file.Name)
			if err != nil {
				return nil, "", errdomain.Wrap(errdomain.KindNetwork, "encode form file", err)
			}
			if _, err := part.Write(file.Content); err != nil {
				return nil, "", errdomain.Wrap(errdomain.KindNetwork, "encode form file", err)
			}
		}
		if err := writer.Close(); err != nil {
			return nil, "", errdomain.Wrap(errdomain.KindNetwork, "finalize form", err)
		}
		return &buf, writer.FormDataContentType(), nil

	case req.JSONBody != nil:
		raw, err := json.Marshal(req.JSONBody)
		if err != nil {
			return nil, "", errdomain.Wrap(errdomain.KindValidation, "encode body", err)
		}
		return bytes.NewReader(raw), "application/json", nil

	default:
		return nil, "", nil
	}
}

func (g *Gateway) attachAuth(ctx context.Context, req *http.Request) {
	var token string
	found, err := g.kv.Get(ctx, authTokenKey, &token)
	if err != nil || !found || token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

// statusError maps a non-2xx response to a taxonomy error, best-effort
// extracting a server-provided message from the body.
func (g *Gateway) statusError(req Request, status int, body []byte) error {
	message := gjson.GetBytes(body, "message").String()
	if message == "" {
		message = fmt.Sprintf("%s %s returned %d", req.Method, req.Path, status)
	}

	switch {
	case status == http.StatusUnauthorized:
		return errdomain.New(errdomain.KindAuthentication, message)
	case status == http.StatusForbidden:
		return errdomain.New(errdomain.KindAuthorization, message)
	case status == http.StatusRequestTimeout:
		return errdomain.New(errdomain.KindTimeout, message)
	case status == http.StatusTooManyRequests || status == http.StatusInsufficientStorage:
		return errdomain.New(errdomain.KindQuota, message)
	case status >= 500:
		return errdomain.New(errdomain.KindNetwork, message)
	default:
		return errdomain.New(errdomain.KindValidation, message)
	}
}

// IsReachable reports whether the backend answers its health endpoint.
func (g *Gateway) IsReachable(ctx context.Context) bool {
	resp, err := g.Do(ctx, Request{
		Method:  http.MethodGet,
		Path:    "/health",
		Timeout: 5 * time.Second,
		NoRetry: true,
	})
	return err == nil && resp.Status == http.StatusOK
}

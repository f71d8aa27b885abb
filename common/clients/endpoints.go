package clients

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// AuthResponse is the shape of login/register responses.
type AuthResponse struct {
	Success bool           `json:"success"`
	Token   string         `json:"token"`
	User    map[string]any `json:"user"`
}

// Login authenticates with email and password.
func (g *Gateway) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	resp, err := g.Do(ctx, Request{
		Method:   http.MethodPost,
		Path:     "/auth/login",
		JSONBody: map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return nil, err
	}
	var out AuthResponse
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account.
func (g *Gateway) Register(ctx context.Context, name, email, password string) (*AuthResponse, error) {
	resp, err := g.Do(ctx, Request{
		Method:   http.MethodPost,
		Path:     "/auth/register",
		JSONBody: map[string]string{"name": name, "email": email, "password": password},
	})
	if err != nil {
		return nil, err
	}
	var out AuthResponse
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile fetches the authenticated user.
func (g *Gateway) Profile(ctx context.Context) (map[string]any, error) {
	resp, err := g.Do(ctx, Request{Method: http.MethodGet, Path: "/auth/profile"})
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateToken checks the stored bearer token. Validation is never
// retried; a dead token does not become live on a second attempt.
func (g *Gateway) ValidateToken(ctx context.Context) (bool, error) {
	resp, err := g.Do(ctx, Request{
		Method:  http.MethodGet,
		Path:    "/auth/validate",
		NoRetry: true,
	})
	if err != nil {
		return false, err
	}
	valid := resp.Status == http.StatusOK
	return valid, nil
}

// Logout invalidates the session server-side.
func (g *Gateway) Logout(ctx context.Context) error {
	_, err := g.Do(ctx, Request{Method: http.MethodPost, Path: "/auth/logout", NoRetry: true})
	return err
}

// CompressSingle submits one file for compression and returns the
// compressed blob.
func (g *Gateway) CompressSingle(ctx context.Context, name string, data []byte, level string, imageQuality int) ([]byte, error) {
	resp, err := g.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/compress/single",
		Multipart: &Multipart{
			Fields: map[string]string{
				"compressionLevel": level,
				"imageQuality":     fmt.Sprintf("%d", imageQuality),
			},
			Files: []MultipartFile{{Field: "file", Name: name, Content: data}},
		},
		Timeout:      g.uploadTimeout,
		ResponseKind: ResponseBlob,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// CompressBulk submits a batch for compression and returns the created job.
func (g *Gateway) CompressBulk(ctx context.Context, names []string, files [][]byte, level string, imageQuality int) (string, error) {
	mp := &Multipart{
		Fields: map[string]string{
			"compressionLevel": level,
			"imageQuality":     fmt.Sprintf("%d", imageQuality),
		},
	}
	for i := range files {
		mp.Files = append(mp.Files, MultipartFile{
			Field:   fmt.Sprintf("files[%d]", i),
			Name:    names[i],
			Content: files[i],
		})
	}

	resp, err := g.Do(ctx, Request{
		Method:    http.MethodPost,
		Path:      "/compress/bulk",
		Multipart: mp,
		Timeout:   g.bulkTimeout,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		JobID string `json:"jobId"`
	}
	if err := resp.JSON(&out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

// UploadEncrypted uploads a client-side encrypted blob for server
// processing and returns the job id. Key and IV ride along base64-encoded.
func (g *Gateway) UploadEncrypted(ctx context.Context, name string, ciphertext, key, iv []byte, metadata map[string]any) (string, error) {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}

	resp, err := g.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/upload",
		Multipart: &Multipart{
			Fields: map[string]string{
				"encryption_key": base64.StdEncoding.EncodeToString(key),
				"iv":             base64.StdEncoding.EncodeToString(iv),
				"metadata":       string(meta),
			},
			Files: []MultipartFile{{Field: "encrypted_file", Name: name, Content: ciphertext}},
		},
		Timeout: g.uploadTimeout,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		JobID string `json:"jobId"`
	}
	if err := resp.JSON(&out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

// Convert converts a PDF to the target format and returns the result blob.
func (g *Gateway) Convert(ctx context.Context, name string, data []byte, targetFormat string, options map[string]any) ([]byte, error) {
	opts, err := json.Marshal(options)
	if err != nil {
		return nil, err
	}

	resp, err := g.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/convert/pdf-to-" + targetFormat,
		Multipart: &Multipart{
			Fields: map[string]string{
				"target_format": targetFormat,
				"options":       string(opts),
			},
			Files: []MultipartFile{{Field: "file", Name: name, Content: data}},
		},
		Timeout:      g.uploadTimeout,
		ResponseKind: ResponseBlob,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// ExtractText runs text extraction over a PDF.
func (g *Gateway) ExtractText(ctx context.Context, name string, data []byte, options map[string]string) (string, error) {
	mp := &Multipart{
		Fields: options,
		Files:  []MultipartFile{{Field: "file", Name: name, Content: data}},
	}
	resp, err := g.Do(ctx, Request{
		Method:    http.MethodPost,
		Path:      "/extract/text",
		Multipart: mp,
		Timeout:   g.uploadTimeout,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := resp.JSON(&out); err != nil {
		return "", err
	}
	return out.Text, nil
}

// SummarizeResult is the AI summarize response.
type SummarizeResult struct {
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points"`
	WordCount   int      `json:"word_count"`
	ReadingTime int      `json:"reading_time"`
}

// Summarize runs AI summarization over extracted text.
func (g *Gateway) Summarize(ctx context.Context, body map[string]any) (*SummarizeResult, error) {
	resp, err := g.Do(ctx, Request{
		Method:   http.MethodPost,
		Path:     "/ai/summarize",
		JSONBody: body,
		Timeout:  g.uploadTimeout,
	})
	if err != nil {
		return nil, err
	}
	var out SummarizeResult
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TranslateResult is the AI translate response.
type TranslateResult struct {
	TranslatedText   string  `json:"translated_text"`
	OriginalLanguage string  `json:"original_language"`
	WordCount        int     `json:"word_count"`
	Confidence       float64 `json:"confidence"`
}

// Translate runs AI translation over extracted text.
func (g *Gateway) Translate(ctx context.Context, body map[string]any) (*TranslateResult, error) {
	resp, err := g.Do(ctx, Request{
		Method:   http.MethodPost,
		Path:     "/ai/translate",
		JSONBody: body,
		Timeout:  g.uploadTimeout,
	})
	if err != nil {
		return nil, err
	}
	var out TranslateResult
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CloudTokenExchange swaps an OAuth code for a provider access token.
func (g *Gateway) CloudTokenExchange(ctx context.Context, provider, code, redirectURI string) (string, error) {
	resp, err := g.Do(ctx, Request{
		Method:   http.MethodPost,
		Path:     "/cloud/" + provider + "/token",
		JSONBody: map[string]string{"code": code, "redirect_uri": redirectURI},
	})
	if err != nil {
		return "", err
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := resp.JSON(&out); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

// CloudValidate checks the provider token server-side.
func (g *Gateway) CloudValidate(ctx context.Context, provider string) (bool, error) {
	resp, err := g.Do(ctx, Request{
		Method:  http.MethodGet,
		Path:    "/cloud/" + provider + "/validate",
		NoRetry: true,
	})
	if err != nil {
		return false, err
	}
	return resp.Status == http.StatusOK, nil
}

// CloudUpload pushes a file to the provider.
func (g *Gateway) CloudUpload(ctx context.Context, provider, name string, data []byte, folder string) (map[string]any, error) {
	resp, err := g.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/cloud/" + provider + "/upload",
		Multipart: &Multipart{
			Fields: map[string]string{"folder_path": folder},
			Files:  []MultipartFile{{Field: "file", Name: name, Content: data}},
		},
		Timeout: g.uploadTimeout,
	})
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// CloudDownload pulls a remote file blob from the provider.
func (g *Gateway) CloudDownload(ctx context.Context, provider, remoteID string) ([]byte, error) {
	resp, err := g.Do(ctx, Request{
		Method:       http.MethodGet,
		Path:         "/cloud/" + provider + "/download",
		Query:        url.Values{"file_id": {remoteID}},
		Timeout:      g.uploadTimeout,
		ResponseKind: ResponseBlob,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// CloudEntry is one remote listing row.
type CloudEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// CloudList enumerates remote files under a folder.
func (g *Gateway) CloudList(ctx context.Context, provider, folder string) ([]CloudEntry, error) {
	query := url.Values{}
	if folder != "" {
		query.Set("folder_path", folder)
	}
	resp, err := g.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   "/cloud/" + provider + "/list",
		Query:  query,
	})
	if err != nil {
		return nil, err
	}
	var out struct {
		Entries []CloudEntry `json:"entries"`
	}
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// CloudCreateFolder creates a remote folder.
func (g *Gateway) CloudCreateFolder(ctx context.Context, provider, folderPath string, options map[string]any) (map[string]any, error) {
	resp, err := g.Do(ctx, Request{
		Method:   http.MethodPost,
		Path:     "/cloud/" + provider + "/folder",
		JSONBody: map[string]any{"folder_path": folderPath, "options": options},
	})
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// CloudRevoke revokes the provider grant. Best-effort by contract.
func (g *Gateway) CloudRevoke(ctx context.Context, provider string) error {
	_, err := g.Do(ctx, Request{
		Method:  http.MethodPost,
		Path:    "/cloud/" + provider + "/revoke",
		NoRetry: true,
	})
	return err
}

// SendAnalytics flushes a batch of analytics events.
func (g *Gateway) SendAnalytics(ctx context.Context, events []map[string]any, sessionID string) error {
	_, err := g.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/analytics",
		JSONBody: map[string]any{
			"events":    events,
			"sessionId": sessionID,
			"timestamp": nowMillis(),
		},
		NoRetry: true,
	})
	return err
}

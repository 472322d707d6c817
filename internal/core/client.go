package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// APIError is a non-2xx answer from the drive server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type RemoteFolder struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

type RemoteFile struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	Category string  `json:"category"`
	FolderID *string `json:"folder_id"`
}

type UsageReport struct {
	Summary struct {
		UsedBytes      int64 `json:"used_bytes"`
		LimitBytes     int64 `json:"limit_bytes"`
		RemainingBytes int64 `json:"remaining_bytes"`
		Files          int   `json:"files"`
		Folders        int   `json:"folders"`
	} `json:"summary"`
	OverTime []struct {
		Month string `json:"month"`
		Bytes int64  `json:"bytes"`
	} `json:"over_time"`
	ByCategory []struct {
		Category string `json:"category"`
		Bytes    int64  `json:"bytes"`
	} `json:"by_category"`
}

// Client talks to the drive HTTP API as one owner.
type Client struct {
	baseURL string
	owner   string
	secret  string
	http    *retryablehttp.Client
}

func NewClient(baseURL, owner, secret string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = slog.Default()
	rc.CheckRetry = retryPolicy
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		owner:   owner,
		secret:  secret,
		http:    rc,
	}
}

// retryPolicy retries transport failures and responses that say the request
// was not processed. Any other server answer is final, so an upload that
// reached the server is never sent twice.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true, nil
	}
	return false, nil
}

// CreateFolder creates a folder under parentID, or at the root when parentID is nil.
func (c *Client) CreateFolder(ctx context.Context, name string, parentID *string) (*RemoteFolder, error) {
	body, err := json.Marshal(map[string]any{"name": name, "parent_id": parentID})
	if err != nil {
		return nil, err
	}
	var folder RemoteFolder
	if err := c.do(ctx, http.MethodPost, "/api/folders", "application/json", body, http.StatusCreated, &folder); err != nil {
		return nil, fmt.Errorf("failed to create folder %q: %w", name, err)
	}
	return &folder, nil
}

// UploadFile sends one local file as name into folderID.
func (c *Client) UploadFile(ctx context.Context, localPath, name string, folderID *string) (*RemoteFile, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", localPath, err)
	}
	if folderID != nil {
		if err := w.WriteField("folder_id", *folderID); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var file RemoteFile
	if err := c.do(ctx, http.MethodPost, "/api/files", w.FormDataContentType(), buf.Bytes(), http.StatusCreated, &file); err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", localPath, err)
	}
	return &file, nil
}

func (c *Client) Usage(ctx context.Context) (*UsageReport, error) {
	var report UsageReport
	if err := c.do(ctx, http.MethodGet, "/api/usage", "", nil, http.StatusOK, &report); err != nil {
		return nil, fmt.Errorf("failed to fetch usage: %w", err)
	}
	return &report, nil
}

type PushResult struct {
	Folders int
	Files   int
	Bytes   int64
}

// Push replays a plan against the server below destination (nil for root).
// It stops at the first failed step; steps before it stay applied.
func (c *Client) Push(ctx context.Context, steps []Step, destination *string, progress func(Step)) (*PushResult, error) {
	result := &PushResult{}
	ids := make([]*string, len(steps))

	for i, step := range steps {
		parent := destination
		if step.Parent != NoParent {
			parent = ids[step.Parent]
		}

		switch step.Kind {
		case StepFolder:
			folder, err := c.CreateFolder(ctx, step.Name, parent)
			if err != nil {
				return result, err
			}
			ids[i] = &folder.ID
			result.Folders++
		case StepFile:
			file, err := c.UploadFile(ctx, step.LocalPath, step.Name, parent)
			if err != nil {
				return result, err
			}
			result.Files++
			result.Bytes += file.Size
		}

		if progress != nil {
			progress(step)
		}
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, want int, out any) error {
	var raw any
	if body != nil {
		raw = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, raw)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.SetBasicAuth(c.owner, c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := http.StatusText(resp.StatusCode)
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

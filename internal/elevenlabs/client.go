package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/paradixe-xz/evaInstance-sub001/internal/retry"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	pageSize       = 100
)

// List calls gate the whole walk, so they retry harder than detail calls.
var (
	defaultListRetry   = retry.Policy{MaxAttempts: 5, BaseDelay: 2 * time.Second}
	defaultDetailRetry = retry.Policy{MaxAttempts: 3, BaseDelay: time.Second}
)

type Client struct {
	apiKey      string
	baseURL     string
	client      *http.Client
	listRetry   retry.Policy
	detailRetry retry.Policy
	logger      *slog.Logger
}

func NewClient(apiKey string, logger *slog.Logger) *Client {
	return &Client{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		listRetry:   defaultListRetry,
		detailRetry: defaultDetailRetry,
		logger:      logger,
	}
}

// ListConversations fetches one page of conversations. Cursor is the opaque
// continuation token from the previous page ("" for the first page). Zero
// startUnix/endUnix mean no bound on that side.
func (c *Client) ListConversations(ctx context.Context, cursor, agentID string, startUnix, endUnix int64) (*Page, error) {
	q := url.Values{}
	q.Set("page_size", strconv.Itoa(pageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if agentID != "" {
		q.Set("agent_id", agentID)
	}
	if startUnix > 0 {
		q.Set("call_start_after_unix", strconv.FormatInt(startUnix, 10))
	}
	if endUnix > 0 {
		q.Set("call_start_before_unix", strconv.FormatInt(endUnix, 10))
	}

	var resp listResponse
	err := c.listRetry.Do(ctx, c.logger, "list conversations", func() error {
		return c.getJSON(ctx, "/v1/convai/conversations?"+q.Encode(), &resp)
	})
	if err != nil {
		return nil, err
	}

	page := &Page{
		Items:   resp.Conversations,
		HasMore: resp.HasMore,
	}
	if resp.NextCursor != nil {
		page.NextCursor = *resp.NextCursor
	}
	return page, nil
}

// GetConversation fetches the full detail payload for one conversation.
func (c *Client) GetConversation(ctx context.Context, id string) (*Detail, error) {
	var detail Detail
	err := c.detailRetry.Do(ctx, c.logger, "get conversation", func() error {
		return c.getJSON(ctx, "/v1/convai/conversations/"+url.PathEscape(id), &detail)
	})
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Detail struct {
				Status  string `json:"status"`
				Message string `json:"message"`
			} `json:"detail"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Detail.Message != "" {
			return fmt.Errorf("api error %d: %s — %s", resp.StatusCode, errResp.Detail.Status, errResp.Detail.Message)
		}
		return fmt.Errorf("api error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// IsTransient reports whether err looks like a network-class transient
// failure (timeout, connection reset, truncated response) for which a
// paused-and-resumed walk makes sense.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Transport errors that reach us as flattened strings.
	msg := err.Error()
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "timeout")
}

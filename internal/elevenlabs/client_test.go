package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/paradixe-xz/evaInstance-sub001/internal/retry"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("test-key", nil)
	c.baseURL = srv.URL
	c.listRetry = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Sleep: noSleep}
	c.detailRetry = retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Sleep: noSleep}
	return c
}

func TestListConversations_QueryAndAuth(t *testing.T) {
	var gotQuery map[string]string
	var gotKey string

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("xi-api-key")
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"conversations": []map[string]any{
				{"conversation_id": "conv_1", "agent_id": "agent_a", "status": "done"},
			},
			"has_more":    true,
			"next_cursor": "cur_2",
		})
	}))

	page, err := c.ListConversations(context.Background(), "cur_1", "agent_a", 1700000000, 1700100000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotKey != "test-key" {
		t.Errorf("xi-api-key = %q, want test-key", gotKey)
	}
	if gotQuery["cursor"] != "cur_1" {
		t.Errorf("cursor = %q, want cur_1", gotQuery["cursor"])
	}
	if gotQuery["agent_id"] != "agent_a" {
		t.Errorf("agent_id = %q", gotQuery["agent_id"])
	}
	if gotQuery["call_start_after_unix"] != "1700000000" {
		t.Errorf("call_start_after_unix = %q", gotQuery["call_start_after_unix"])
	}
	if gotQuery["call_start_before_unix"] != "1700100000" {
		t.Errorf("call_start_before_unix = %q", gotQuery["call_start_before_unix"])
	}

	if len(page.Items) != 1 || page.Items[0].ConversationID != "conv_1" {
		t.Fatalf("unexpected page items: %+v", page.Items)
	}
	if !page.HasMore || page.NextCursor != "cur_2" {
		t.Errorf("pagination state = (%v, %q), want (true, cur_2)", page.HasMore, page.NextCursor)
	}
}

func TestListConversations_OmitsUnsetFilters(t *testing.T) {
	var gotQuery url.Values
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]any{"conversations": []any{}, "has_more": false})
	}))

	if _, err := c.ListConversations(context.Background(), "", "", 0, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, param := range []string{"cursor", "agent_id", "call_start_after_unix", "call_start_before_unix"} {
		if gotQuery.Has(param) {
			t.Errorf("expected %s to be omitted, query = %v", param, gotQuery)
		}
	}
}

func TestListConversations_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"conversations": []any{}, "has_more": false})
	}))

	if _, err := c.ListConversations(context.Background(), "", "agent_a", 0, 0); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestGetConversation_ExhaustsRetries(t *testing.T) {
	calls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))

	if _, err := c.GetConversation(context.Background(), "conv_x"); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls (detail ceiling), got %d", calls)
	}
}

func TestGetConversation_ParsesDetail(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/convai/conversations/conv_9" {
			t.Errorf("path = %q", r.URL.Path)
		}
		io.WriteString(w, `{
			"conversation_id": "conv_9",
			"agent_id": "agent_a",
			"user_id": "+525511112222",
			"status": "done",
			"transcript": [{"role": "agent", "message": "hola"}],
			"metadata": {"phone_call": {"external_number": "+525533334444"}},
			"analysis": {
				"call_successful": "success",
				"data_collection_results": {"monto": {"value": 15000}}
			}
		}`)
	}))

	detail, err := c.GetConversation(context.Background(), "conv_9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.ConversationID != "conv_9" {
		t.Errorf("conversation_id = %q", detail.ConversationID)
	}
	if got := detail.PhoneNumber(); got == nil || *got != "+525533334444" {
		t.Errorf("phone = %v, want external number", got)
	}
	if got := detail.Outcome(); got == nil || *got != "success" {
		t.Errorf("outcome = %v, want success", got)
	}
	if got := detail.CollectedValue("monto"); got == nil || *got != "15000" {
		t.Errorf("monto = %v, want 15000", got)
	}
}

func TestCollectedValue_NullSafety(t *testing.T) {
	detail := &Detail{Analysis: &Analysis{DataCollectionResults: map[string]CollectedField{
		"canal":    {Value: json.RawMessage(`"whatsapp"`)},
		"aprobado": {Value: json.RawMessage(`true`)},
		"edad":     {Value: json.RawMessage(`null`)},
		"vacio":    {Value: json.RawMessage(`""`)},
	}}}

	if got := detail.CollectedValue("canal"); got == nil || *got != "whatsapp" {
		t.Errorf("canal = %v", got)
	}
	if got := detail.CollectedValue("aprobado"); got == nil || *got != "true" {
		t.Errorf("aprobado = %v", got)
	}
	if got := detail.CollectedValue("edad"); got != nil {
		t.Errorf("null value should map to nil, got %q", *got)
	}
	// Empty string stays an empty string — distinct from absence.
	if got := detail.CollectedValue("vacio"); got == nil || *got != "" {
		t.Errorf("empty value = %v, want pointer to \"\"", got)
	}
	if got := detail.CollectedValue("inexistente"); got != nil {
		t.Errorf("absent code should map to nil, got %q", *got)
	}

	var empty *Detail
	if got := empty.CollectedValue("canal"); got != nil {
		t.Error("nil detail should never panic or return a value")
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(syscall.ECONNRESET) {
		t.Error("ECONNRESET should be transient")
	}
	if !IsTransient(io.ErrUnexpectedEOF) {
		t.Error("unexpected EOF should be transient")
	}
	if !IsTransient(context.DeadlineExceeded) {
		t.Error("deadline exceeded should be transient")
	}
	if IsTransient(errors.New("api error 404: not found")) {
		t.Error("a plain API error is not transient")
	}
	if IsTransient(nil) {
		t.Error("nil is not transient")
	}
}

package automation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"opsflow/internal/models"
)

func TestRegisterBuiltinActions(t *testing.T) {
	executor, registry, _ := newTestExecutor(t)

	if err := RegisterBuiltinActions(registry, executor, &stubTransport{}, quietLogger()); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	for _, key := range []string{ActionKeyInternalLog, ActionKeyWebhook, ActionKeyConditional} {
		if _, ok := registry.Resolve(key); !ok {
			t.Fatalf("missing builtin action %s", key)
		}
	}
}

func TestMaskSensitive(t *testing.T) {
	payload := map[string]interface{}{
		"email":    "user@example.com",
		"password": "hunter2",
		"nested": map[string]interface{}{
			"accessToken": "abc",
			"note":        "keep",
		},
		"items": []interface{}{
			map[string]interface{}{"apiSecret": "s3cret", "sku": "A1"},
		},
	}

	masked := MaskSensitive(payload).(map[string]interface{})

	if masked["password"] != "***" {
		t.Fatalf("password not masked: %v", masked["password"])
	}
	if masked["email"] != "user@example.com" {
		t.Fatal("non-sensitive value was altered")
	}
	nested := masked["nested"].(map[string]interface{})
	if nested["accessToken"] != "***" || nested["note"] != "keep" {
		t.Fatalf("nested masking wrong: %v", nested)
	}
	item := masked["items"].([]interface{})[0].(map[string]interface{})
	if item["apiSecret"] != "***" || item["sku"] != "A1" {
		t.Fatalf("array element masking wrong: %v", item)
	}

	// Input must be untouched.
	if payload["password"] != "hunter2" {
		t.Fatal("input payload was mutated")
	}
	if payload["nested"].(map[string]interface{})["accessToken"] != "abc" {
		t.Fatal("nested input was mutated")
	}
}

func TestLogActionAlwaysSucceeds(t *testing.T) {
	action := NewLogAction(quietLogger())
	outcome, err := action.Execute(context.Background(), map[string]interface{}{"jwtToken": "x"}, models.ActionContext{ExecutionID: "run-1"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.Status != models.ActionStatusSuccess {
		t.Fatalf("outcome: %+v", outcome)
	}
}

type stubTransport struct {
	err  error
	reqs []WebhookRequest
}

func (s *stubTransport) Send(ctx context.Context, req WebhookRequest) error {
	s.reqs = append(s.reqs, req)
	return s.err
}

func TestWebhookActionMissingURL(t *testing.T) {
	transport := &stubTransport{}
	action := NewWebhookAction(transport)

	outcome, err := action.Execute(context.Background(), map[string]interface{}{}, models.ActionContext{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.Status != models.ActionStatusFailed || outcome.Error == "" {
		t.Fatalf("outcome: %+v", outcome)
	}
	if len(transport.reqs) != 0 {
		t.Fatal("transport must not be called without a url")
	}
}

func TestWebhookActionDelivery(t *testing.T) {
	transport := &stubTransport{}
	action := NewWebhookAction(transport)

	payload := map[string]interface{}{
		"url":       "https://hooks.example.com/x",
		"method":    "PUT",
		"headers":   map[string]interface{}{"X-Env": "test"},
		"body":      map[string]interface{}{"hello": "world"},
		"timeoutMs": float64(1500),
	}
	outcome, err := action.Execute(context.Background(), payload, models.ActionContext{IdempotencyKey: "auto_abc"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.Status != models.ActionStatusSuccess {
		t.Fatalf("outcome: %+v", outcome)
	}

	if len(transport.reqs) != 1 {
		t.Fatalf("expected one delivery, got %d", len(transport.reqs))
	}
	req := transport.reqs[0]
	if req.URL != "https://hooks.example.com/x" || req.Method != "PUT" {
		t.Fatalf("request: %+v", req)
	}
	if req.Headers["X-Env"] != "test" || req.TimeoutMs != 1500 || req.IdempotencyKey != "auto_abc" {
		t.Fatalf("request: %+v", req)
	}
}

func TestWebhookActionTransportError(t *testing.T) {
	action := NewWebhookAction(&stubTransport{err: errors.New("connection refused")})

	outcome, err := action.Execute(context.Background(), map[string]interface{}{"url": "https://x"}, models.ActionContext{})
	if err != nil {
		t.Fatalf("execute must absorb transport errors, got %v", err)
	}
	if outcome.Status != models.ActionStatusFailed || outcome.Error != "connection refused" {
		t.Fatalf("outcome: %+v", outcome)
	}
}

func TestHTTPWebhookTransport(t *testing.T) {
	var gotKey, gotMethod string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		gotMethod = r.Method
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := NewHTTPWebhookTransport(nil)
	err := transport.Send(context.Background(), WebhookRequest{
		URL:            server.URL,
		Method:         http.MethodPost,
		Body:           map[string]interface{}{"hello": "world"},
		IdempotencyKey: "auto_xyz",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotKey != "auto_xyz" || gotMethod != http.MethodPost {
		t.Fatalf("request: key=%q method=%q", gotKey, gotMethod)
	}
	if gotBody["hello"] != "world" {
		t.Fatalf("body: %v", gotBody)
	}
}

func TestHTTPWebhookTransportNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	transport := NewHTTPWebhookTransport(nil)
	err := transport.Send(context.Background(), WebhookRequest{URL: server.URL, Method: http.MethodPost})
	if err == nil {
		t.Fatal("non-2xx response must be an error")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Fatalf("error should carry the status: %v", err)
	}
}

func TestConditionalActionBranchSelection(t *testing.T) {
	executor, registry, _ := newTestExecutor(t)

	var calls []string
	mustRegister(t, registry, "record", func(ctx context.Context, payload map[string]interface{}, actx models.ActionContext) (ActionOutcome, error) {
		calls = append(calls, payload["tag"].(string))
		return ActionOutcome{}, nil
	})

	action := NewConditionalAction(executor)
	payload := map[string]interface{}{
		"path":  "metadata.tier",
		"op":    "equals",
		"value": "gold",
		"thenActions": []interface{}{
			map[string]interface{}{"key": "b", "actionKey": "record", "payload": map[string]interface{}{"tag": "then-b"}},
			map[string]interface{}{"key": "a", "actionKey": "record", "payload": map[string]interface{}{"tag": "then-a"}},
		},
		"elseActions": []interface{}{
			map[string]interface{}{"key": "a", "actionKey": "record", "payload": map[string]interface{}{"tag": "else-a"}},
		},
	}

	actx := models.ActionContext{Metadata: map[string]string{"tier": "gold"}}
	outcome, err := action.Execute(context.Background(), payload, actx)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.Status != models.ActionStatusSuccess {
		t.Fatalf("outcome: %+v", outcome)
	}
	// Then branch taken and sorted by key.
	if want := []string{"then-a", "then-b"}; !reflect.DeepEqual(calls, want) {
		t.Fatalf("calls %v, want %v", calls, want)
	}
	if len(outcome.SubResults) != 2 {
		t.Fatalf("sub results: %+v", outcome.SubResults)
	}

	calls = nil
	actx.Metadata["tier"] = "silver"
	if _, err := action.Execute(context.Background(), payload, actx); err != nil {
		t.Fatalf("execute else: %v", err)
	}
	if want := []string{"else-a"}; !reflect.DeepEqual(calls, want) {
		t.Fatalf("else calls %v, want %v", calls, want)
	}
}

func TestConditionalActionInvalidPayload(t *testing.T) {
	executor, _, _ := newTestExecutor(t)
	action := NewConditionalAction(executor)

	outcome, err := action.Execute(context.Background(), map[string]interface{}{"op": "equals"}, models.ActionContext{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.Status != models.ActionStatusFailed {
		t.Fatalf("outcome: %+v", outcome)
	}
}

func TestConditionalActionFailedBranchPropagates(t *testing.T) {
	executor, registry, _ := newTestExecutor(t)
	mustRegister(t, registry, "boom", func(ctx context.Context, payload map[string]interface{}, actx models.ActionContext) (ActionOutcome, error) {
		return ActionOutcome{}, errors.New("boom")
	})

	action := NewConditionalAction(executor)
	payload := map[string]interface{}{
		"path": "companyId",
		"op":   "exists",
		"thenActions": []interface{}{
			map[string]interface{}{"key": "a", "actionKey": "boom"},
		},
	}

	outcome, err := action.Execute(context.Background(), payload, models.ActionContext{CompanyID: "comp-1"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.Status != models.ActionStatusFailed {
		t.Fatalf("outcome: %+v", outcome)
	}
	if len(outcome.SubResults) != 1 || outcome.SubResults[0].Status != models.ActionStatusFailed {
		t.Fatalf("sub results: %+v", outcome.SubResults)
	}
}

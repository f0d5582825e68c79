package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"opsflow/internal/models"
)

// ActionKeyWebhook delivers the invocation payload to an external HTTP
// endpoint through an injected transport.
const ActionKeyWebhook = "webhook"

// WebhookRequest is the transport contract's input. Timeout enforcement is
// the transport's responsibility; TimeoutMs is only a hint passed through.
type WebhookRequest struct {
	URL            string
	Method         string
	Headers        map[string]string
	Body           map[string]interface{}
	TimeoutMs      int
	IdempotencyKey string
}

// WebhookTransport performs the actual delivery. Errors propagate as returned
// errors and are caught by the adapter.
type WebhookTransport interface {
	Send(ctx context.Context, req WebhookRequest) error
}

// WebhookAction validates the invocation and delegates to the transport. It
// never returns an error from Execute: transport failures become a FAILED
// outcome with the error formatted to a string.
type WebhookAction struct {
	transport WebhookTransport
}

func NewWebhookAction(transport WebhookTransport) *WebhookAction {
	return &WebhookAction{transport: transport}
}

func (a *WebhookAction) Execute(ctx context.Context, payload map[string]interface{}, actx models.ActionContext) (ActionOutcome, error) {
	url, _ := payload["url"].(string)
	if url == "" {
		return ActionOutcome{Status: models.ActionStatusFailed, Error: "webhook action requires a non-empty url"}, nil
	}
	if a.transport == nil {
		return ActionOutcome{Status: models.ActionStatusFailed, Error: "webhook transport not configured"}, nil
	}

	req := WebhookRequest{
		URL:            url,
		Method:         http.MethodPost,
		IdempotencyKey: actx.IdempotencyKey,
	}
	if method, ok := payload["method"].(string); ok && method != "" {
		req.Method = method
	}
	if headers, ok := payload["headers"].(map[string]interface{}); ok {
		req.Headers = make(map[string]string, len(headers))
		for k, v := range headers {
			req.Headers[k] = fmt.Sprintf("%v", v)
		}
	}
	if body, ok := payload["body"].(map[string]interface{}); ok {
		req.Body = body
	}
	if timeout, ok := asFloat(payload["timeoutMs"]); ok {
		req.TimeoutMs = int(timeout)
	}

	if err := a.transport.Send(ctx, req); err != nil {
		return ActionOutcome{Status: models.ActionStatusFailed, Error: err.Error()}, nil
	}
	return ActionOutcome{Status: models.ActionStatusSuccess}, nil
}

// HTTPWebhookTransport is the default transport over net/http. It honors the
// per-request timeout hint and treats any non-2xx response as a failure.
type HTTPWebhookTransport struct {
	client *http.Client
}

func NewHTTPWebhookTransport(client *http.Client) *HTTPWebhookTransport {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPWebhookTransport{client: client}
}

func (t *HTTPWebhookTransport) Send(ctx context.Context, req WebhookRequest) error {
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	var body bytes.Buffer
	if req.Body != nil {
		if err := json.NewEncoder(&body).Encode(req.Body); err != nil {
			return fmt.Errorf("encode webhook body: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, &body)
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/lifecycle"
)

const maxErrorBody = 2048

// WebhookAdapter runs each step as POST {endpoint}/steps/{step}. The body is
// the step request; the response is a lifecycle.StepResult.
type WebhookAdapter struct {
	endpoint    string
	client      *http.Client
	credentials CredentialSource
	logger      *zap.Logger
}

var _ lifecycle.Adapter = (*WebhookAdapter)(nil)

func NewWebhookAdapter(endpoint string, timeout time.Duration, credentials CredentialSource, logger *zap.Logger) *WebhookAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookAdapter{
		endpoint:    strings.TrimRight(endpoint, "/"),
		client:      &http.Client{Timeout: timeout},
		credentials: credentials,
		logger:      logger,
	}
}

func (a *WebhookAdapter) ExecuteStep(ctx context.Context, req lifecycle.StepRequest) (lifecycle.StepResult, error) {
	token, err := a.credentials.Credential(ctx, req.OrganizationID)
	if err != nil {
		return lifecycle.StepResult{}, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return lifecycle.StepResult{}, fmt.Errorf("encode step request: %w", err)
	}

	target := a.endpoint + "/steps/" + url.PathEscape(req.Step)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return lifecycle.StepResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("X-Helios-Action-Id", req.ActionID.String())
	httpReq.Header.Set("X-Helios-Attempt", fmt.Sprint(req.Attempt))

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return lifecycle.StepResult{}, fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		if inv, ok := a.credentials.(interface{ Invalidate(uuid.UUID) }); ok {
			inv.Invalidate(req.OrganizationID)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		a.logger.Warn("Provider rejected step",
			zap.String("action_id", req.ActionID.String()),
			zap.String("step", req.Step),
			zap.Int("status", resp.StatusCode))
		return lifecycle.StepResult{}, fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result lifecycle.StepResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return lifecycle.StepResult{}, fmt.Errorf("decode provider response: %w", err)
	}
	return result, nil
}

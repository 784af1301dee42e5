package compliance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/apperr"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/config"
)

// CheckResult is the provider's verdict on one CPF.
type CheckResult struct {
	Status string   `json:"status"`
	Score  *float64 `json:"score,omitempty"`
	Cached bool     `json:"cached,omitempty"`
}

// Provider calls the external compliance API.
type Provider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewProvider builds the HTTP provider client.
func NewProvider(cfg config.ComplianceConfig) *Provider {
	return &Provider{
		baseURL: cfg.GetComplianceAPIURL(),
		apiKey:  cfg.GetComplianceAPIKey(),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type checkRequest struct {
	CPF      string `json:"cpf"`
	ForceNew bool   `json:"forceNew,omitempty"`
}

// Check runs one compliance check. 4xx responses map to Validation errors
// (bad input, not worth retrying); 5xx and transport failures map to
// Unavailable so asynq's retry policy kicks in.
func (p *Provider) Check(ctx context.Context, cpf string, forceNew bool) (CheckResult, error) {
	body, err := json.Marshal(checkRequest{CPF: cpf, ForceNew: forceNew})
	if err != nil {
		return CheckResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/checks", bytes.NewReader(body))
	if err != nil {
		return CheckResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return CheckResult{}, apperr.Wrap(apperr.KindUnavailable, "compliance provider unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CheckResult{}, apperr.Wrap(apperr.KindUnavailable, "compliance response read failed", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return CheckResult{}, apperr.Unavailable(fmt.Sprintf("compliance provider returned %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return CheckResult{}, apperr.Validation(fmt.Sprintf("compliance provider rejected request: %d", resp.StatusCode))
	}

	var result CheckResult
	if err := json.Unmarshal(data, &result); err != nil {
		return CheckResult{}, fmt.Errorf("decode compliance response: %w", err)
	}
	return result, nil
}

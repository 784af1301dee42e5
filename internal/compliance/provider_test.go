package compliance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/apperr"
)

type testComplianceConfig struct {
	apiURL string
}

func (c testComplianceConfig) GetRedisURL() string            { return "redis://localhost:6379" }
func (c testComplianceConfig) GetRedisTLSInsecure() bool      { return false }
func (c testComplianceConfig) GetComplianceQueueName() string { return "compliance" }
func (c testComplianceConfig) GetComplianceAPIURL() string    { return c.apiURL }
func (c testComplianceConfig) GetComplianceAPIKey() string    { return "test-key" }
func (c testComplianceConfig) IsComplianceEnabled() bool      { return c.apiURL != "" }

func TestProviderCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checks" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"clear","score":0.97,"cached":true}`))
	}))
	defer srv.Close()

	provider := NewProvider(testComplianceConfig{apiURL: srv.URL})
	result, err := provider.Check(context.Background(), "12345678901", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != "clear" || !result.Cached {
		t.Errorf("result = %+v", result)
	}
	if result.Score == nil || *result.Score != 0.97 {
		t.Errorf("score = %v", result.Score)
	}
}

func TestProviderCheckErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind apperr.Kind
	}{
		{"server error is retryable", http.StatusBadGateway, apperr.KindUnavailable},
		{"client error is terminal", http.StatusUnprocessableEntity, apperr.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			provider := NewProvider(testComplianceConfig{apiURL: srv.URL})
			_, err := provider.Check(context.Background(), "12345678901", false)
			if err == nil {
				t.Fatal("expected error")
			}
			if !apperr.Is(err, tt.wantKind) {
				t.Errorf("kind = %v, want %v (err: %v)", apperr.GetKind(err), tt.wantKind, err)
			}
		})
	}
}

func TestProviderCheckUnreachable(t *testing.T) {
	provider := &Provider{
		baseURL: "http://127.0.0.1:1",
		apiKey:  "k",
		client:  &http.Client{Timeout: 200 * time.Millisecond},
	}
	_, err := provider.Check(context.Background(), "12345678901", false)
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Errorf("want unavailable, got %v", err)
	}
}

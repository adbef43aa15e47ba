package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Angus1976/superinsight1225-sub020/internal/health"
	"github.com/Angus1976/superinsight1225-sub020/internal/models"
)

// maxLivenessBody bounds how much of a liveness response is read
const maxLivenessBody = 1 << 20

// CredentialDecryptor decrypts a provider's stored credentials for probing.
// Implemented by storage.Encryption; a nil decryptor probes without auth.
type CredentialDecryptor interface {
	DecryptCredentials(encrypted models.JSONB) (map[string]string, error)
}

// HTTPProber issues HTTP liveness checks against provider endpoints. It
// implements health.Prober: every failure mode is normalized into a failed
// Outcome, never an error or panic, and the check is bounded by the
// caller's context deadline.
type HTTPProber struct {
	client    *http.Client
	decryptor CredentialDecryptor
}

// NewHTTPProber creates a prober. The HTTP client carries no timeout of its
// own; each probe is bounded by the context the monitor passes in.
func NewHTTPProber(decryptor CredentialDecryptor) *HTTPProber {
	return &HTTPProber{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		decryptor: decryptor,
	}
}

// Probe performs one liveness check and returns the normalized Outcome.
// Success requires a well-formed 2xx liveness response, not just a
// successful TCP connection.
func (p *HTTPProber) Probe(ctx context.Context, provider *models.Provider) health.Outcome {
	start := time.Now()

	req, err := p.livenessRequest(ctx, provider)
	if err != nil {
		return failedOutcome(start, fmt.Sprintf("failed to build liveness request: %v", err))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return failedOutcome(start, "probe timed out")
		}
		return failedOutcome(start, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLivenessBody))
	if err != nil {
		return failedOutcome(start, fmt.Sprintf("failed to read liveness response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failedOutcome(start, fmt.Sprintf("liveness check returned status=%d", resp.StatusCode))
	}

	if err := validateLivenessBody(provider, body); err != nil {
		return failedOutcome(start, err.Error())
	}

	return health.Outcome{Success: true, Latency: time.Since(start)}
}

// livenessRequest builds the vendor-appropriate liveness request
func (p *HTTPProber) livenessRequest(ctx context.Context, provider *models.Provider) (*http.Request, error) {
	creds, err := p.credentials(provider)
	if err != nil {
		return nil, err
	}

	switch models.ProviderType(provider.ProviderType) {
	case models.ProviderTypeOpenAI:
		return openAILivenessRequest(ctx, provider, creds)
	default:
		return genericLivenessRequest(ctx, provider, creds)
	}
}

func (p *HTTPProber) credentials(provider *models.Provider) (map[string]string, error) {
	if p.decryptor == nil || len(provider.EncryptedCredentials) == 0 {
		return nil, nil
	}
	creds, err := p.decryptor.DecryptCredentials(provider.EncryptedCredentials)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	return creds, nil
}

// genericLivenessRequest probes the provider's endpoint directly, honoring
// an optional health_path model param and bearer-token credentials.
func genericLivenessRequest(ctx context.Context, provider *models.Provider, creds map[string]string) (*http.Request, error) {
	if provider.Endpoint == "" {
		return nil, fmt.Errorf("provider %s has no endpoint", provider.Name)
	}

	url := strings.TrimSuffix(provider.Endpoint, "/")
	if path, ok := provider.ModelParams.StringValue("health_path"); ok && path != "" {
		url += "/" + strings.TrimPrefix(path, "/")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	if key := creds["api_key"]; key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	return req, nil
}

// validateLivenessBody rejects responses that connected but are not a
// well-formed liveness payload for the provider type.
func validateLivenessBody(provider *models.Provider, body []byte) error {
	switch models.ProviderType(provider.ProviderType) {
	case models.ProviderTypeOpenAI:
		return validateOpenAILiveness(body)
	default:
		return nil
	}
}

func failedOutcome(start time.Time, msg string) health.Outcome {
	return health.Outcome{Success: false, Err: msg, Latency: time.Since(start)}
}

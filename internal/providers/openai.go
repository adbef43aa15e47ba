package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Angus1976/superinsight1225-sub020/internal/models"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// openAILivenessRequest probes an OpenAI-compatible backend by listing its
// models, which exercises both connectivity and authentication.
func openAILivenessRequest(ctx context.Context, provider *models.Provider, creds map[string]string) (*http.Request, error) {
	baseURL := openAIDefaultBaseURL
	if provider.Endpoint != "" {
		baseURL = strings.TrimSuffix(provider.Endpoint, "/")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}

	if key := creds["api_key"]; key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	return req, nil
}

// validateOpenAILiveness requires the models listing to be a JSON object.
// A 2xx with a non-JSON body (a proxy error page, say) is not a live backend.
func validateOpenAILiveness(body []byte) error {
	var payload struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("malformed liveness response: %v", err)
	}
	return nil
}

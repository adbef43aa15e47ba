package models

import (
	"time"

	"github.com/google/uuid"
)

// ProviderType enumerates supported provider types.
type ProviderType string

const (
	ProviderTypeOpenAI   ProviderType = "openai"
	ProviderTypeVertexAI ProviderType = "vertexai"
	ProviderTypeBedrock  ProviderType = "bedrock"
	ProviderTypeGeneric  ProviderType = "generic"
)

// Provider represents an LLM provider configuration.
// The record is owned by the platform's configuration layer; the health
// core treats Endpoint, EncryptedCredentials and ModelParams as opaque
// connection details and only interprets Priority and Enabled.
type Provider struct {
	ID                   uuid.UUID `db:"id"`
	Name                 string    `db:"name"`
	DisplayName          string    `db:"display_name"`
	ProviderType         string    `db:"provider_type"`
	Endpoint             string    `db:"endpoint"`
	EncryptedCredentials JSONB     `db:"encrypted_credentials"`
	ModelParams          JSONB     `db:"model_params"`
	// Priority orders routing candidates; lower wins.
	Priority  int       `db:"priority"`
	Enabled   bool      `db:"enabled"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

package main

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const (
	defaultRegion = "europe-west1"
	defaultModel  = "gemini-2.5-flash"
)

// GeminiConfig selects how the Gemini client authenticates.
// An API key uses the Gemini API; otherwise a project id selects VertexAI
// with Application Default Credentials.
type GeminiConfig struct {
	APIKey    string
	ProjectID string
	Region    string
	Model     string
}

// Configured reports whether any credential was provided.
func (c GeminiConfig) Configured() bool {
	return c.APIKey != "" || c.ProjectID != ""
}

// GeminiClient wraps the Google GenAI client.
type GeminiClient struct {
	client    *genai.Client
	modelName string
}

// NewGeminiClient creates a client from cfg.
// For VertexAI set GOOGLE_APPLICATION_CREDENTIALS to the service account key file path.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	cc := &genai.ClientConfig{}
	switch {
	case cfg.APIKey != "":
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	case cfg.ProjectID != "":
		region := cfg.Region
		if region == "" {
			region = defaultRegion
		}
		cc.Project = cfg.ProjectID
		cc.Location = region
		cc.Backend = genai.BackendVertexAI
	default:
		return nil, fmt.Errorf("no Gemini credential: set an API key or a GCP project")
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &GeminiClient{
		client:    client,
		modelName: model,
	}, nil
}

// Close releases resources held by the client.
func (g *GeminiClient) Close() error {
	return nil
}

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DruboPaul/web-surveyscriber/constants"
	"github.com/DruboPaul/web-surveyscriber/internal/common"
	"github.com/DruboPaul/web-surveyscriber/internal/entity"
)

func testSchema(names ...string) entity.Schema {
	return entity.SchemaFromFields(names)
}

func TestResolve(t *testing.T) {
	t.Run("missing api key", func(t *testing.T) {
		_, err := Resolve("openai", common.Settings{}, nil)
		require.Error(t, err)
		var cfgErr *common.ConfigError
		assert.ErrorAs(t, err, &cfgErr)
	})

	t.Run("defaults to settings provider", func(t *testing.T) {
		p, err := Resolve("", common.Settings{AIProvider: "anthropic", AIAPIKey: "k"}, nil)
		require.NoError(t, err)
		assert.Equal(t, constants.ProviderAnthropic, p.Name())
	})

	t.Run("gemini", func(t *testing.T) {
		p, err := Resolve("google", common.Settings{AIAPIKey: "k"}, nil)
		require.NoError(t, err)
		assert.Equal(t, constants.ProviderGemini, p.Name())
	})

	t.Run("custom needs no key", func(t *testing.T) {
		p, err := Resolve("custom", common.Settings{
			CustomEndpoint: "http://localhost:11434/v1",
			CustomModel:    "llama3",
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, constants.ProviderCustom, p.Name())
	})

	t.Run("unknown falls back to openai", func(t *testing.T) {
		p, err := Resolve("something-else", common.Settings{AIAPIKey: "k"}, nil)
		require.NoError(t, err)
		assert.Equal(t, constants.ProviderOpenAI, p.Name())
	})
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  {\"a\": 1}\n", `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestDecodeFields(t *testing.T) {
	schema := testSchema("name", "age")

	t.Run("valid object", func(t *testing.T) {
		out, err := decodeFields("```json\n{\"name\": \"Rahim\", \"age\": \"32\"}\n```", schema)
		require.NoError(t, err)
		assert.Equal(t, "Rahim", out["name"])
	})

	t.Run("not json", func(t *testing.T) {
		_, err := decodeFields("sorry, I cannot help with that", schema)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid json")
	})

	t.Run("array rejected", func(t *testing.T) {
		_, err := decodeFields(`[{"name": "x"}]`, schema)
		require.Error(t, err)
	})
}

func TestGeminiExtractText(t *testing.T) {
	var gotKey, gotQuery string
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{
					{"text": `{"name": "Rahim"}`},
				}}},
			},
			"usageMetadata": map[string]any{
				"promptTokenCount": 30, "candidatesTokenCount": 10, "totalTokenCount": 40,
			},
		})
	}))
	defer stub.Close()

	c := NewGemini(GeminiConfig{APIKey: "secret-key", BaseURL: stub.URL}, nil)
	fields, usage, err := c.ExtractText(context.Background(), "NAME: Rahim", testSchema("name"))
	require.NoError(t, err)
	assert.Equal(t, "Rahim", fields["name"])
	assert.Equal(t, 40, usage.TotalTokens)

	// The key rides in a header so error strings that embed the URL
	// cannot expose it.
	assert.Equal(t, "secret-key", gotKey)
	assert.Empty(t, gotQuery)
}

func TestBuildFieldSchema(t *testing.T) {
	schema := testSchema("district", "upazila")
	m := BuildFieldSchema(schema)
	assert.Equal(t, "object", m["type"])
	props, ok := m["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "district")
	assert.Contains(t, props, "upazila")
}

package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fyrsmithlabs/brdforge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModelConfig(baseURL string) config.ModelConfig {
	var key config.Secret
	_ = key.UnmarshalText([]byte("test-key"))
	return config.ModelConfig{
		Provider:  "openai",
		BaseURL:   baseURL,
		APIKey:    key,
		Name:      "test-model",
		Timeout:   config.Duration(5 * time.Second),
		MaxTokens: 256,
	}
}

func TestOpenAIClient_Complete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(testModelConfig(srv.URL), nil)
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), []Message{System("sys"), User("hi")}, true)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 256, got.MaxTokens)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
}

func TestOpenAIClient_NoResponseFormatWithoutJSONMode(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"prose"}}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(testModelConfig(srv.URL), nil)
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), []Message{User("hi")}, false)
	require.NoError(t, err)
	assert.NotContains(t, raw, "response_format")
}

func TestOpenAIClient_ErrorKinds(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusInternalServerError, KindTransient},
		{http.StatusBadGateway, KindTransient},
		{http.StatusUnauthorized, KindPermanent},
		{http.StatusBadRequest, KindPermanent},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"x"}}`))
			}))
			defer srv.Close()

			c, err := NewOpenAIClient(testModelConfig(srv.URL), nil)
			require.NoError(t, err)
			_, err = c.Complete(context.Background(), []Message{User("hi")}, false)
			require.Error(t, err)

			var me *Error
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.want, me.Kind)
			assert.Equal(t, tt.status, me.StatusCode)
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestOpenAIClient_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := NewOpenAIClient(testModelConfig(url), nil)
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), []Message{User("hi")}, false)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRateLimit(err))
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(testModelConfig(srv.URL), nil)
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), []Message{User("hi")}, false)
	assert.True(t, IsRetryable(err))
}

func TestNewOpenAIClient_RequiresModel(t *testing.T) {
	cfg := testModelConfig("")
	cfg.Name = ""
	_, err := NewOpenAIClient(cfg, nil)
	assert.Error(t, err)
}

func TestNewClient_Provider(t *testing.T) {
	c, err := NewClient(testModelConfig("http://localhost:1"), nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	cfg := testModelConfig("http://localhost:1")
	cfg.Provider = "langchaingo"
	c, err = NewClient(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &LangChainClient{}, c)

	cfg.Provider = "smoke-signals"
	_, err = NewClient(cfg, nil)
	assert.Error(t, err)
}

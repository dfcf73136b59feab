package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

type fakeLLM struct {
	messages []llms.MessageContent
	resp     *llms.ContentResponse
	err      error
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	return f.resp, f.err
}

func (f *fakeLLM) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", errors.New("not used")
}

func TestLangChainClient_Complete(t *testing.T) {
	fake := &fakeLLM{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: `{"results":[]}`}}}}
	c := newLangChainClient(fake, testModelConfig(""), nil)

	out, err := c.Complete(context.Background(), []Message{System("sys"), User("hi")}, true)
	require.NoError(t, err)
	assert.Equal(t, `{"results":[]}`, out)

	require.Len(t, fake.messages, 3)
	assert.Equal(t, schema.ChatMessageTypeSystem, fake.messages[0].Role)
	assert.Equal(t, schema.ChatMessageTypeHuman, fake.messages[1].Role)
	assert.Equal(t, llms.TextContent{Text: jsonInstruction}, fake.messages[2].Parts[0])
}

func TestLangChainClient_ErrorKinds(t *testing.T) {
	fake := &fakeLLM{err: errors.New("API returned unexpected status code: 429: rate limit")}
	c := newLangChainClient(fake, testModelConfig(""), nil)

	_, err := c.Complete(context.Background(), []Message{User("hi")}, false)
	assert.True(t, IsRateLimit(err))

	fake.err = nil
	fake.resp = &llms.ContentResponse{}
	_, err = c.Complete(context.Background(), []Message{User("hi")}, false)
	assert.True(t, IsRetryable(err))
}

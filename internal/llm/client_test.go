package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel scripts responses per call.
type fakeModel struct {
	responses []string
	errs      []error
	calls     int
	lastMsgs  []llms.MessageContent
}

func (m *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	i := m.calls
	m.calls++
	m.lastMsgs = messages
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	content := ""
	if i < len(m.responses) {
		content = m.responses[i]
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: content}},
	}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func TestClient_Complete(t *testing.T) {
	model := &fakeModel{responses: []string{"the draft"}}
	client := NewWithModel(model, nil)

	out, err := client.Complete(context.Background(), "you are a writer", "write a post")
	require.NoError(t, err)
	assert.Equal(t, "the draft", out)

	require.Len(t, model.lastMsgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.lastMsgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.lastMsgs[1].Role)
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	model := &fakeModel{
		responses: []string{"", "recovered"},
		errs:      []error{errors.New("rate limited"), nil},
	}
	client := NewWithModel(model, nil)
	client.maxRetries = 2

	out, err := client.Complete(context.Background(), "sys", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, 2, model.calls)
}

func TestClient_NoRetryWithoutBudget(t *testing.T) {
	model := &fakeModel{errs: []error{errors.New("boom")}}
	client := NewWithModel(model, nil)

	_, err := client.Complete(context.Background(), "sys", "prompt")
	require.Error(t, err)
	assert.Equal(t, 1, model.calls)
}

func TestClient_CancelledContextNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := &fakeModel{errs: []error{context.Canceled}}
	client := NewWithModel(model, nil)
	client.maxRetries = 3

	_, err := client.Complete(ctx, "sys", "prompt")
	require.Error(t, err)
	assert.LessOrEqual(t, model.calls, 1)
}

func TestClient_EmptyChoices(t *testing.T) {
	client := NewWithModel(&emptyModel{}, nil)

	_, err := client.Complete(context.Background(), "sys", "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

type emptyModel struct{}

func (emptyModel) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{}, nil
}

func (emptyModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", nil
}

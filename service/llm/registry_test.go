package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	reply string
	fail  error
	calls int
}

var _ llms.Model = (*fakeModel)(nil)

func (f *fakeModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.reply}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	resp, err := f.GenerateContent(ctx, nil, opts...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func testRegistry(cloud, local, oai *fakeModel) *Registry {
	factories := make(map[Provider]func() (llms.Model, error))
	for p, m := range map[Provider]*fakeModel{
		ProviderOllamaCloud: cloud,
		ProviderOllamaLocal: local,
		ProviderOpenAI:      oai,
	} {
		m := m
		if m == nil {
			p := p
			factories[p] = func() (llms.Model, error) {
				return nil, errors.New(string(p) + " not configured")
			}
			continue
		}
		factories[p] = func() (llms.Model, error) { return m, nil }
	}
	return NewRegistryWithFactories(factories)
}

var msgs = []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "hi")}

func TestGetResolvesPreferred(t *testing.T) {
	local := &fakeModel{reply: "local"}
	r := testRegistry(&fakeModel{reply: "cloud"}, local, &fakeModel{reply: "openai"})

	model, actual, err := r.Get(ProviderOllamaLocal)
	require.NoError(t, err)
	assert.Equal(t, ProviderOllamaLocal, actual)
	assert.Same(t, llms.Model(local), model)
}

func TestGetFallsThroughUnavailable(t *testing.T) {
	r := testRegistry(nil, nil, &fakeModel{reply: "openai"})

	_, actual, err := r.Get(ProviderOllamaCloud)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, actual)
}

func TestGetNoProviderAvailable(t *testing.T) {
	r := testRegistry(nil, nil, nil)

	_, _, err := r.Get(ProviderOllamaCloud)
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
}

func TestInvokeStopsAtFirstSuccess(t *testing.T) {
	local := &fakeModel{reply: "from local"}
	oai := &fakeModel{reply: "from openai"}
	r := testRegistry(nil, local, oai)

	text, actual, err := r.InvokeWithFallback(context.Background(), msgs, ProviderOllamaCloud, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "from local", text)
	assert.Equal(t, ProviderOllamaLocal, actual)
	assert.Equal(t, 0, oai.calls, "later providers must not be attempted after a success")
}

func TestInvokeWrapsAroundFromPreferred(t *testing.T) {
	cloud := &fakeModel{reply: "from cloud"}
	r := testRegistry(cloud, nil, &fakeModel{fail: errors.New("rate limited")})

	text, actual, err := r.InvokeWithFallback(context.Background(), msgs, ProviderOpenAI, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "from cloud", text)
	assert.Equal(t, ProviderOllamaCloud, actual)
}

func TestInvokeAllProvidersFail(t *testing.T) {
	cloud := &fakeModel{fail: errors.New("cloud down")}
	local := &fakeModel{fail: errors.New("local down")}
	oai := &fakeModel{fail: errors.New("openai down")}
	r := testRegistry(cloud, local, oai)

	_, _, err := r.InvokeWithFallback(context.Background(), msgs, ProviderOllamaCloud, 0.7)
	require.Error(t, err)

	var allFailed *AllProvidersFailedError
	require.ErrorAs(t, err, &allFailed)
	assert.Len(t, allFailed.Errs, 3)

	// Each provider is attempted exactly once.
	assert.Equal(t, 1, cloud.calls)
	assert.Equal(t, 1, local.calls)
	assert.Equal(t, 1, oai.calls)
}

func TestPrimaryProvider(t *testing.T) {
	r := testRegistry(nil, &fakeModel{}, &fakeModel{})
	p, err := r.PrimaryProvider()
	require.NoError(t, err)
	assert.Equal(t, ProviderOllamaLocal, p)
}

func TestValidProvider(t *testing.T) {
	assert.True(t, ValidProvider(ProviderOllamaCloud))
	assert.True(t, ValidProvider(ProviderOpenAI))
	assert.False(t, ValidProvider("gemini"))
}

package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"mathchat-backend/service/llm"
	"mathchat-backend/service/vectorstore"
)

type fakeRetriever struct {
	results []vectorstore.SearchResult
	err     error

	gotCollection string
	gotK          int
}

func (f *fakeRetriever) SimilaritySearch(_ context.Context, collection, _ string, k int, _ map[string]any) ([]vectorstore.SearchResult, error) {
	f.gotCollection = collection
	f.gotK = k
	return f.results, f.err
}

type fakeGenerator struct {
	reply     string
	err       error
	available map[llm.Provider]bool

	gotPreferred   llm.Provider
	gotTemperature float64
	gotMessages    []llms.MessageContent
}

func (f *fakeGenerator) InvokeWithFallback(_ context.Context, messages []llms.MessageContent, preferred llm.Provider, temperature float64) (string, llm.Provider, error) {
	f.gotPreferred = preferred
	f.gotTemperature = temperature
	f.gotMessages = messages
	if f.err != nil {
		return "", "", f.err
	}
	return f.reply, preferred, nil
}

func (f *fakeGenerator) Available(p llm.Provider) bool {
	return f.available[p]
}

func textOf(m llms.MessageContent) string {
	var b strings.Builder
	for _, part := range m.Parts {
		if t, ok := part.(llms.TextContent); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

func TestChatHappyPath(t *testing.T) {
	retriever := &fakeRetriever{results: []vectorstore.SearchResult{
		{Content: "The integral of x is x^2/2.", Metadata: map[string]any{
			"title": "Calculus Notes", "filename": "calc.pdf", "chunk_index": int64(4),
		}, Score: 0.91},
	}}
	generator := &fakeGenerator{reply: "It is $x^2/2 + C$."}
	s := NewService(retriever, generator)

	answer, err := s.Chat(context.Background(), Request{
		Question:   "What is the antiderivative of x?",
		Collection: "math_notes",
	})
	require.NoError(t, err)

	assert.Equal(t, "It is $x^2/2 + C$.", answer.Text)
	assert.Equal(t, llm.ProviderOllamaCloud, answer.Provider)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "Calculus Notes", answer.Sources[0].Title)
	assert.Equal(t, int64(4), answer.Sources[0].ChunkIndex)

	assert.Equal(t, "math_notes", retriever.gotCollection)
	assert.Equal(t, DefaultTopK, retriever.gotK)
	assert.Equal(t, DefaultTemperature, generator.gotTemperature)

	// Retrieved content is injected into the system prompt.
	system := textOf(generator.gotMessages[0])
	assert.Contains(t, system, "The integral of x is x^2/2.")
	assert.Contains(t, system, "Calculus Notes")
}

func TestChatValidation(t *testing.T) {
	s := NewService(&fakeRetriever{}, &fakeGenerator{})

	bad := func(req Request, field string) {
		t.Helper()
		_, err := s.Chat(context.Background(), req)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, field, ve.Field)
	}

	temp := 2.5
	topK := 0
	bad(Request{Collection: "c"}, "question")
	bad(Request{Question: "q"}, "collection")
	bad(Request{Question: "q", Collection: "c", Provider: "gemini"}, "provider")
	bad(Request{Question: "q", Collection: "c", Temperature: &temp}, "temperature")
	bad(Request{Question: "q", Collection: "c", TopK: &topK}, "top_k")
}

func TestChatRetrievalFailureIsFatal(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("milvus unreachable")}
	generator := &fakeGenerator{reply: "never"}
	s := NewService(retriever, generator)

	_, err := s.Chat(context.Background(), Request{Question: "q", Collection: "c"})
	var re *RetrievalError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "c", re.Collection)
	assert.Nil(t, generator.gotMessages, "generation must not run without context")
}

func TestMathQuestionsPreferOpenAI(t *testing.T) {
	generator := &fakeGenerator{reply: "ok", available: map[llm.Provider]bool{llm.ProviderOpenAI: true}}
	s := NewService(&fakeRetriever{}, generator)

	_, err := s.Chat(context.Background(), Request{
		Question:   "Prove the theorem that $e^{i\\pi} = -1$.",
		Collection: "c",
		Provider:   llm.ProviderOllamaLocal,
	})
	require.NoError(t, err)
	assert.Equal(t, llm.ProviderOpenAI, generator.gotPreferred)

	// The math prompt asks for LaTeX output.
	assert.Contains(t, textOf(generator.gotMessages[0]), "LaTeX")
}

func TestMathRoutingRespectsUnavailableOpenAI(t *testing.T) {
	generator := &fakeGenerator{reply: "ok", available: map[llm.Provider]bool{}}
	s := NewService(&fakeRetriever{}, generator)

	_, err := s.Chat(context.Background(), Request{
		Question:   "What is the derivative of sin(x)?",
		Collection: "c",
		Provider:   llm.ProviderOllamaLocal,
	})
	require.NoError(t, err)
	assert.Equal(t, llm.ProviderOllamaLocal, generator.gotPreferred)
}

func TestHistoryWindowKeepsLastTen(t *testing.T) {
	generator := &fakeGenerator{reply: "ok"}
	s := NewService(&fakeRetriever{}, generator)

	var history []Message
	for i := 0; i < 14; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		history = append(history, Message{Role: role, Content: strings.Repeat("m", i+1)})
	}

	_, err := s.Chat(context.Background(), Request{
		Question:   "hello there",
		Collection: "c",
		History:    history,
	})
	require.NoError(t, err)

	// system + 10 history turns + question
	require.Len(t, generator.gotMessages, 12)
	assert.Equal(t, strings.Repeat("m", 5), textOf(generator.gotMessages[1]),
		"oldest surviving turn is number five")
	assert.Equal(t, llms.ChatMessageTypeAI, generator.gotMessages[2].Role)
}

func TestSystemPromptReplacesDefault(t *testing.T) {
	retriever := &fakeRetriever{results: []vectorstore.SearchResult{
		{Content: "Reference chunk.", Metadata: map[string]any{"title": "T"}},
	}}
	generator := &fakeGenerator{reply: "ok"}
	s := NewService(retriever, generator)

	_, err := s.Chat(context.Background(), Request{
		Question:     "hello",
		Collection:   "c",
		SystemPrompt: "You are a pirate assistant.",
	})
	require.NoError(t, err)

	system := textOf(generator.gotMessages[0])
	assert.Contains(t, system, "You are a pirate assistant.")
	assert.NotContains(t, system, "Guidelines:", "the default instruction must be replaced, not extended")
	assert.Contains(t, system, "Reference chunk.", "retrieved context still reaches an overridden prompt")
}

func TestSystemPromptOverrideWithContextToken(t *testing.T) {
	retriever := &fakeRetriever{results: []vectorstore.SearchResult{
		{Content: "Reference chunk.", Metadata: map[string]any{"title": "T"}},
	}}
	generator := &fakeGenerator{reply: "ok"}
	s := NewService(retriever, generator)

	_, err := s.Chat(context.Background(), Request{
		Question:     "hello",
		Collection:   "c",
		SystemPrompt: "Use only this material:\n{context}",
	})
	require.NoError(t, err)

	system := textOf(generator.gotMessages[0])
	assert.Contains(t, system, "Use only this material:\nReference chunk.")
	assert.Equal(t, 1, strings.Count(system, "Reference chunk."),
		"context is injected at the token, not appended a second time")
}

func TestCustomInstructionsAreAppended(t *testing.T) {
	generator := &fakeGenerator{reply: "ok"}
	s := NewService(&fakeRetriever{}, generator)

	_, err := s.Chat(context.Background(), Request{
		Question:           "hello",
		Collection:         "c",
		CustomInstructions: "Answer in one sentence.",
	})
	require.NoError(t, err)

	system := textOf(generator.gotMessages[0])
	assert.Contains(t, system, "Guidelines:", "the default instruction stays in effect")
	assert.Contains(t, system, "Additional Instructions: Answer in one sentence.")
}

func TestCustomInstructionsFollowOverride(t *testing.T) {
	generator := &fakeGenerator{reply: "ok"}
	s := NewService(&fakeRetriever{}, generator)

	_, err := s.Chat(context.Background(), Request{
		Question:           "hello",
		Collection:         "c",
		SystemPrompt:       "Base override.",
		CustomInstructions: "Cite every source.",
	})
	require.NoError(t, err)

	system := textOf(generator.gotMessages[0])
	assert.Contains(t, system, "Base override.")
	assert.Contains(t, system, "Additional Instructions: Cite every source.")
	assert.NotContains(t, system, "Guidelines:")
}

func TestIsMathQuestion(t *testing.T) {
	assert.True(t, isMathQuestion("How do I solve this integral?"))
	assert.True(t, isMathQuestion("Simplify $\\frac{a}{b}$"))
	assert.True(t, isMathQuestion("What does \\nabla mean?"))
	assert.True(t, isMathQuestion("什么是矩阵的特征值"))
	assert.False(t, isMathQuestion("What is the capital of France?"))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(&ValidationError{Field: "q"}))
	assert.True(t, IsFatal(&RetrievalError{Collection: "c", Err: errors.New("x")}))
	assert.True(t, IsFatal(&llm.AllProvidersFailedError{Errs: map[llm.Provider]error{}}))
	assert.False(t, IsFatal(errors.New("transient")))
}

// Package rag runs the retrieval-augmented chat flow: validate the request,
// pull relevant chunks from the vector store, then generate an answer with
// provider failover.
package rag

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"mathchat-backend/service/llm"
	"mathchat-backend/service/vectorstore"
)

//go:embed prompts/system.txt
var systemPrompt string

//go:embed prompts/system_math.txt
var mathSystemPrompt string

const (
	DefaultTemperature = 0.7
	DefaultTopK        = 5

	minTemperature = 0.0
	maxTemperature = 2.0
	maxTopK        = 20

	// Older turns beyond this window are dropped from the prompt.
	historyWindow = 10
)

// Retriever is the read side of the vector store.
type Retriever interface {
	SimilaritySearch(ctx context.Context, collection, query string, k int, filter map[string]any) ([]vectorstore.SearchResult, error)
}

// Generator is the provider registry surface the chat flow needs.
type Generator interface {
	InvokeWithFallback(ctx context.Context, messages []llms.MessageContent, preferred llm.Provider, temperature float64) (string, llm.Provider, error)
	Available(p llm.Provider) bool
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Question   string
	Collection string
	Provider   llm.Provider

	Temperature *float64
	TopK        *int

	// SystemPrompt replaces the default system instruction entirely;
	// CustomInstructions are appended to whichever instruction is in effect.
	SystemPrompt       string
	CustomInstructions string

	History []Message
}

type Source struct {
	Title      string  `json:"title"`
	Filename   string  `json:"filename"`
	ChunkIndex int64   `json:"chunk_index"`
	Score      float32 `json:"score"`
	Content    string  `json:"content"`
}

type Answer struct {
	Text     string       `json:"text"`
	Provider llm.Provider `json:"provider"`
	Sources  []Source     `json:"sources"`
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type RetrievalError struct {
	Collection string
	Err        error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval from %s failed: %v", e.Collection, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

type Service struct {
	retriever Retriever
	generator Generator
}

func NewService(retriever Retriever, generator Generator) *Service {
	return &Service{retriever: retriever, generator: generator}
}

// Chat answers a question against a collection. Retrieval failures abort the
// flow: answering without context silently degrades to hallucination, which
// is worse than a clear error.
func (s *Service) Chat(ctx context.Context, req Request) (*Answer, error) {
	temperature, topK, err := validate(&req)
	if err != nil {
		return nil, err
	}

	results, err := s.retriever.SimilaritySearch(ctx, req.Collection, req.Question, topK, nil)
	if err != nil {
		return nil, &RetrievalError{Collection: req.Collection, Err: err}
	}

	provider := req.Provider
	if isMathQuestion(req.Question) && s.generator.Available(llm.ProviderOpenAI) {
		provider = llm.ProviderOpenAI
	}

	messages := buildMessages(req, results)
	text, actual, err := s.generator.InvokeWithFallback(ctx, messages, provider, temperature)
	if err != nil {
		return nil, err
	}

	slog.Info("chat answered",
		"collection", req.Collection,
		"provider", actual,
		"sources", len(results),
		"math", provider != req.Provider,
	)

	return &Answer{
		Text:     text,
		Provider: actual,
		Sources:  sources(results),
	}, nil
}

func validate(req *Request) (float64, int, error) {
	if strings.TrimSpace(req.Question) == "" {
		return 0, 0, &ValidationError{Field: "question", Reason: "must not be empty"}
	}
	if strings.TrimSpace(req.Collection) == "" {
		return 0, 0, &ValidationError{Field: "collection", Reason: "must not be empty"}
	}

	if req.Provider == "" {
		req.Provider = llm.ProviderOllamaCloud
	} else if !llm.ValidProvider(req.Provider) {
		return 0, 0, &ValidationError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q", req.Provider)}
	}

	temperature := DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
		if temperature < minTemperature || temperature > maxTemperature {
			return 0, 0, &ValidationError{Field: "temperature", Reason: "must be between 0 and 2"}
		}
	}

	topK := DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
		if topK < 1 || topK > maxTopK {
			return 0, 0, &ValidationError{Field: "top_k", Reason: "must be between 1 and 20"}
		}
	}

	return temperature, topK, nil
}

var (
	mathKeywords = []string{
		"integral", "derivative", "equation", "theorem", "proof", "matrix",
		"limit", "calculus", "algebra", "geometry", "polynomial", "vector",
		"eigenvalue", "differential", "logarithm", "solve", "compute",
		"积分", "导数", "方程", "定理", "证明", "矩阵", "极限", "微积分", "代数", "几何",
	}

	inlineMathRe  = regexp.MustCompile(`\$[^$]+\$`)
	latexMacroRe  = regexp.MustCompile(`\\[a-zA-Z]+`)
	mathSymbolsRe = regexp.MustCompile(`[∫∑∏√∂∇≈≠≤≥±∞]`)
)

// isMathQuestion routes mathematical questions to the strongest backend.
func isMathQuestion(question string) bool {
	lower := strings.ToLower(question)
	for _, kw := range mathKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return inlineMathRe.MatchString(question) ||
		latexMacroRe.MatchString(question) ||
		mathSymbolsRe.MatchString(question)
}

func buildMessages(req Request, results []vectorstore.SearchResult) []llms.MessageContent {
	base := systemPrompt
	if isMathQuestion(req.Question) {
		base = mathSystemPrompt
	}
	// A supplied system prompt replaces the default instruction wholesale;
	// custom instructions are appended to whichever instruction is in effect.
	if override := strings.TrimSpace(req.SystemPrompt); override != "" {
		base = override
	}

	refs := formatContext(results)
	prompt := strings.ReplaceAll(base, "{context}", refs)
	if !strings.Contains(base, "{context}") {
		prompt += "\n\nReference context:\n" + refs
	}
	if instructions := strings.TrimSpace(req.CustomInstructions); instructions != "" {
		prompt += "\n\nAdditional Instructions: " + instructions
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, prompt),
	}

	history := req.History
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	for _, m := range history {
		role := llms.ChatMessageTypeHuman
		if m.Role == "assistant" || m.Role == "ai" {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, m.Content))
	}

	return append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Question))
}

func formatContext(results []vectorstore.SearchResult) string {
	if len(results) == 0 {
		return "(no relevant material found)"
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		title, _ := r.Metadata["title"].(string)
		fmt.Fprintf(&b, "[Source %d: %s]\n%s", i+1, title, r.Content)
	}
	return b.String()
}

func sources(results []vectorstore.SearchResult) []Source {
	out := make([]Source, 0, len(results))
	for _, r := range results {
		s := Source{Score: r.Score, Content: r.Content}
		s.Title, _ = r.Metadata["title"].(string)
		s.Filename, _ = r.Metadata["filename"].(string)
		if v, ok := r.Metadata["chunk_index"].(int64); ok {
			s.ChunkIndex = v
		}
		out = append(out, s)
	}
	return out
}

// IsFatal reports whether an error from Chat should not be retried with a
// different provider hint: validation and retrieval problems will not heal,
// and exhausted failover has already tried everything.
func IsFatal(err error) bool {
	var ve *ValidationError
	var re *RetrievalError
	var all *llm.AllProvidersFailedError
	return errors.As(err, &ve) || errors.As(err, &re) || errors.As(err, &all)
}

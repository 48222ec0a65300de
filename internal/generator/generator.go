// Package generator drives retrieval, prompting, the model call and the
// compliance linter through a bounded generate, validate, retry loop.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"psadtagent/internal/installer"
	"psadtagent/internal/knowledge"
	"psadtagent/internal/lint"
	"psadtagent/internal/llm"
	"psadtagent/internal/prompt"
	"psadtagent/internal/script"
)

// ErrNoResult means no attempt produced anything that could be scored.
var ErrNoResult = errors.New("generator: no script could be generated")

const (
	DefaultMaxRetries = 2
	RetrievalTopK     = knowledge.DefaultTopK
	MaxTokens         = 4096
	Temperature       = 0.1

	placeholderBadToolCall = "# Error: LLM did not provide usable content or tool call arguments."
	placeholderEmpty       = "# Error: LLM provided no content and no tool call."
)

// Validator scores script text.
type Validator interface {
	Validate(text string) lint.Result
}

// Metadata records how a result was produced.
type Metadata struct {
	Installer  installer.Metadata `json:"installer"`
	UserNotes  string             `json:"user_notes"`
	RAGSources []string           `json:"rag_sources"`
	LLMModel   string             `json:"llm_model"`
	LLMUsage   *llm.Usage         `json:"llm_usage"`
	Attempt    int                `json:"attempt"`
}

// Result is the best attempt of one Generate call. Valid false marks a
// best-effort result that never passed the linter.
type Result struct {
	Script        *script.Script `json:"structured_script,omitempty"`
	ScriptContent string         `json:"script_content"`
	Metadata      Metadata       `json:"metadata"`
	Score         int            `json:"validation_score"`
	Valid         bool           `json:"valid"`
	Issues        []string       `json:"issues"`
	Suggestions   []string       `json:"suggestions"`
	RAGSources    []string       `json:"rag_sources"`
}

type Generator struct {
	retriever  knowledge.Retriever
	client     llm.Client
	linter     Validator
	logger     *zap.Logger
	maxRetries int
}

type Option func(*Generator)

func WithLinter(v Validator) Option { return func(g *Generator) { g.linter = v } }

func WithLogger(l *zap.Logger) Option { return func(g *Generator) { g.logger = l } }

// WithMaxRetries sets how many retries follow the first attempt.
func WithMaxRetries(n int) Option {
	return func(g *Generator) {
		if n >= 0 {
			g.maxRetries = n
		}
	}
}

func New(r knowledge.Retriever, c llm.Client, opts ...Option) *Generator {
	g := &Generator{
		retriever:  r,
		client:     c,
		linter:     lint.New(nil),
		logger:     zap.NewNop(),
		maxRetries: DefaultMaxRetries,
	}
	for _, o := range opts {
		o(g)
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	return g
}

// Tool is the forced structured-output function offered to the model.
func Tool() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        script.ToolName,
		Description: script.ToolDescription,
		Parameters:  script.Schema(),
	}
}

// attempt is what one model reply was turned into.
type attempt struct {
	script *script.Script
	text   string
}

// Generate runs the pipeline for one installer. It returns ErrNoResult
// (wrapping the context or last provider error) when nothing could be scored,
// and a best-effort Result with Valid false when attempts ran out.
func (g *Generator) Generate(ctx context.Context, meta installer.Metadata, userNotes string) (*Result, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	meta = meta.WithDefaults()
	log := g.logger.With(zap.String("app", meta.Name), zap.String("version", meta.Version))

	query := prompt.BuildRAGQuery(meta, userNotes)
	hits, err := g.retriever.Search(ctx, query, RetrievalTopK)
	if err != nil {
		return nil, fmt.Errorf("generator: retrieve: %w", err)
	}
	sources := knowledge.Sources(hits)
	log.Info("retrieved documentation", zap.Int("query_len", len(query)), zap.Int("hits", len(hits)))

	messages := prompt.BuildGenerationPrompt(meta, userNotes, hits)
	tool := Tool()

	var (
		best    *Result
		lastErr error
	)
	total := g.maxRetries + 1
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			if best != nil {
				log.Warn("context done, returning best result", zap.Int("score", best.Score), zap.Error(err))
				return best, nil
			}
			return nil, fmt.Errorf("%w: %w", ErrNoResult, err)
		}
		log.Debug("generation attempt", zap.Int("attempt", i+1), zap.Int("of", total))

		resp, err := g.client.Generate(ctx, llm.Request{
			Messages:    append([]llm.Message(nil), messages...),
			MaxTokens:   MaxTokens,
			Temperature: Temperature,
			Tools:       []llm.ToolDefinition{tool},
			ToolChoice:  tool.Name,
		})
		if err == nil && resp == nil {
			err = llm.ErrEmptyResponse
		}
		if err != nil {
			log.Error("generation attempt failed", zap.Int("attempt", i+1), zap.Error(err))
			lastErr = err
			continue
		}

		a := g.interpret(log, resp, meta)
		res := g.linter.Validate(a.text)
		log.Info("validated script", zap.Int("attempt", i+1), zap.Int("score", res.Score), zap.Bool("valid", res.Valid))

		if best == nil || res.Score > best.Score {
			best = &Result{
				Script:        a.script,
				ScriptContent: a.text,
				Metadata: Metadata{
					Installer:  meta,
					UserNotes:  userNotes,
					RAGSources: sources,
					LLMModel:   resp.Model,
					LLMUsage:   resp.Usage,
					Attempt:    i + 1,
				},
				Score:       res.Score,
				Valid:       res.Valid,
				Issues:      res.Issues,
				Suggestions: res.Suggestions,
				RAGSources:  sources,
			}
		}
		if res.Valid {
			log.Info("script generation succeeded", zap.Int("attempt", i+1))
			return best, nil
		}
		if i < total-1 {
			log.Warn("script validation failed, retrying", zap.Int("score", res.Score))
			messages = append(messages, llm.User(FeedbackMessage(res)))
		}
	}

	if best != nil {
		log.Warn("returning best-effort result", zap.Int("score", best.Score), zap.Int("attempts", total))
		return best, nil
	}
	log.Error("no script generated after all attempts", zap.Int("attempts", total), zap.Error(lastErr))
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoResult, lastErr)
	}
	return nil, ErrNoResult
}

// interpret turns a reply into script text. The structured path renders the
// tool-call arguments; free text is the fallback.
func (g *Generator) interpret(log *zap.Logger, resp *llm.Response, meta installer.Metadata) attempt {
	if call, ok := resp.ToolCall(script.ToolName); ok {
		s, err := script.ParseString(call.Arguments)
		if err == nil {
			text, rerr := script.Render(s, meta)
			if rerr == nil {
				log.Info("parsed structured script from tool call")
				return attempt{script: s, text: text}
			}
			err = rerr
		}
		log.Error("failed to parse structured script from tool call", zap.Error(err))
		if strings.TrimSpace(resp.Content) != "" {
			text, ok := ExtractScript(resp.Content)
			if !ok {
				log.Warn("could not reliably extract script content, using full response")
			}
			return attempt{text: text}
		}
		return attempt{text: placeholderBadToolCall}
	}

	if resp.Content != "" {
		log.Warn("LLM did not use the function call, falling back to raw content")
		text, ok := ExtractScript(resp.Content)
		if !ok {
			log.Warn("could not reliably extract script content, using full response")
		}
		return attempt{text: text}
	}
	log.Error("LLM response had no content and no tool call")
	return attempt{text: placeholderEmpty}
}

// FeedbackMessage is the corrective turn appended after a failed attempt.
func FeedbackMessage(res lint.Result) string {
	parts := []string{
		"The generated script has validation issues. Please improve it:",
		fmt.Sprintf("Current score: %d/100", res.Score),
	}
	if len(res.Issues) > 0 {
		parts = append(parts, "\nIssues to fix:")
		for _, is := range res.Issues {
			parts = append(parts, "- "+is)
		}
	}
	if len(res.Suggestions) > 0 {
		parts = append(parts, "\nSuggestions for improvement:")
		for _, s := range res.Suggestions {
			parts = append(parts, "- "+s)
		}
	}
	parts = append(parts, "\nPlease generate an improved version that addresses these issues.")
	return strings.Join(parts, "\n")
}

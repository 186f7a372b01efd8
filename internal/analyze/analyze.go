// Package analyze is the gateway between pipeline stages and the LLM
// provider. It rate-limits calls, folds the active persona into the
// system prompt, extracts the JSON payload from the raw response, and
// decodes it into the caller's typed struct.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pulsedesk/pulsedesk/internal/llm"
	"github.com/pulsedesk/pulsedesk/internal/store"
)

// Kind classifies an analysis failure.
type Kind int

const (
	// KindService covers provider errors: network, HTTP status, auth.
	KindService Kind = iota
	// KindNoJSON means the model replied but no JSON value was found.
	KindNoJSON
	// KindMalformed means JSON was found but did not decode into the
	// expected shape.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindService:
		return "service"
	case KindNoJSON:
		return "no_json"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// AnalysisError is the typed failure returned by Analyze. Callers
// treat any analysis error as zero results for that call.
type AnalysisError struct {
	Kind Kind
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed (%s): %v", e.Kind, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Analyzer wraps an LLM provider for the pipeline stages.
type Analyzer struct {
	provider llm.Provider
	limiter  *rate.Limiter
	persona  *store.Persona
	logger   *zap.Logger
}

// New creates an Analyzer. A nil limiter gets the default of one call
// per 500ms.
func New(provider llm.Provider, limiter *rate.Limiter, logger *zap.Logger) *Analyzer {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(500*time.Millisecond), 1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		provider: provider,
		limiter:  limiter,
		logger:   logger,
	}
}

// SetPersona sets the analytical persona whose system prompt is
// appended to every call. A nil persona clears it.
func (a *Analyzer) SetPersona(p *store.Persona) {
	a.persona = p
}

// Persona returns the current persona, or nil.
func (a *Analyzer) Persona() *store.Persona {
	return a.persona
}

// Analyze sends a prompt to the provider and decodes the first JSON
// value of the response into out. The persona's system prompt, when
// set, is appended to the stage's own system prompt.
func (a *Analyzer) Analyze(ctx context.Context, prompt, system string, maxTokens int, out any) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return &AnalysisError{Kind: KindService, Err: err}
	}

	system = a.composeSystem(system)
	raw, err := a.provider.Generate(ctx, prompt, system, maxTokens)
	if err != nil {
		return &AnalysisError{Kind: KindService, Err: err}
	}

	payload := llm.ExtractJSON(raw)
	if payload == "" {
		a.logger.Debug("no JSON in model response", zap.Int("response_len", len(raw)))
		return &AnalysisError{Kind: KindNoJSON, Err: fmt.Errorf("no JSON value in response")}
	}

	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return &AnalysisError{Kind: KindMalformed, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// Relevance scores the citation at position p (0-based) in a list of
// total citations: 1.0 for a single citation, otherwise
// round(1 - p/total, 2). Earlier citations score higher and the score
// never reaches 0.
func Relevance(position, total int) float64 {
	if total <= 1 {
		return 1.0
	}
	return math.Round((1.0-float64(position)/float64(total))*100) / 100
}

func (a *Analyzer) composeSystem(system string) string {
	if a.persona == nil || a.persona.SystemPrompt == "" {
		return system
	}
	if system == "" {
		return a.persona.SystemPrompt
	}
	return system + "\n\n" + a.persona.SystemPrompt
}

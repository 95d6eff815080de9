// Package generate defines the external collaborator interfaces: the
// code-generation model that proposes candidate tools and the market data
// provider used by fetch-category tools. The core consumes only these
// interfaces; prompt wording, protocol cleanup, and upstream caching live
// behind the concrete adapters.
package generate

import (
	"context"

	"github.com/anthropics/tool-foundry/internal/domain"
)

// CodeGenerator proposes candidate tool source for a task and patched
// candidates for failing ones.
type CodeGenerator interface {
	// Generate proposes a first candidate for the task.
	Generate(ctx context.Context, task domain.TaskSpec, guidance string) (domain.GeneratedTool, error)

	// GeneratePatch proposes a repaired candidate. priorAttempts is the
	// ordered patch history; implementations forward it so a known-bad
	// approach is not repeated.
	GeneratePatch(ctx context.Context, task domain.TaskSpec, report domain.ErrorReport, priorAttempts []domain.ToolPatch) (domain.GeneratedTool, error)
}

// Quote is one real-time price observation.
type Quote struct {
	Symbol string
	Price  float64
}

// Bar is one historical OHLCV observation.
type Bar struct {
	Date   string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// FinancialInfo is a small slice of fundamentals for a symbol.
type FinancialInfo struct {
	Symbol    string
	MarketCap float64
	PERatio   float64
}

// DataProvider serves market data. The integration verification stage
// makes exactly one call through it to confirm a fetch-category tool's
// assumptions about the live data shape.
type DataProvider interface {
	GetHistorical(ctx context.Context, symbol, start, end string) ([]Bar, error)
	GetQuote(ctx context.Context, symbol string) (Quote, error)
	GetFinancialInfo(ctx context.Context, symbol string) (FinancialInfo, error)
}

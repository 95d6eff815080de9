package generate

import (
	"context"
	"fmt"

	"github.com/anthropics/tool-foundry/internal/domain"
)

// ScriptedGenerator replays a fixed sequence of candidates: element 0 for
// the initial Generate call, element n for patch attempt n. Used by tests
// and by the offline CLI mode.
type ScriptedGenerator struct {
	Candidates []domain.GeneratedTool

	// PatchCalls records every patch request for inspection.
	PatchCalls []PatchCall

	next int
}

// PatchCall captures the inputs of one GeneratePatch invocation.
type PatchCall struct {
	Report        domain.ErrorReport
	PriorAttempts []domain.ToolPatch
}

// Generate returns the next scripted candidate.
func (g *ScriptedGenerator) Generate(_ context.Context, _ domain.TaskSpec, _ string) (domain.GeneratedTool, error) {
	return g.take()
}

// GeneratePatch records the request and returns the next scripted candidate.
func (g *ScriptedGenerator) GeneratePatch(_ context.Context, _ domain.TaskSpec, report domain.ErrorReport, prior []domain.ToolPatch) (domain.GeneratedTool, error) {
	g.PatchCalls = append(g.PatchCalls, PatchCall{
		Report:        report,
		PriorAttempts: append([]domain.ToolPatch(nil), prior...),
	})
	return g.take()
}

func (g *ScriptedGenerator) take() (domain.GeneratedTool, error) {
	if g.next >= len(g.Candidates) {
		return domain.GeneratedTool{}, fmt.Errorf("scripted generator exhausted after %d candidates", len(g.Candidates))
	}
	c := g.Candidates[g.next]
	g.next++
	return c, nil
}

// StaticProvider serves canned market data, standing in for the real
// provider in tests and offline verification runs.
type StaticProvider struct {
	QuoteErr      error
	HistoricalErr error
}

// GetHistorical returns a short canned daily series.
func (p *StaticProvider) GetHistorical(_ context.Context, symbol, start, end string) ([]Bar, error) {
	if p.HistoricalErr != nil {
		return nil, p.HistoricalErr
	}
	return []Bar{
		{Date: start, Open: 100, High: 102, Low: 99, Close: 101, Volume: 1_000_000},
		{Date: end, Open: 101, High: 104, Low: 100, Close: 103, Volume: 1_100_000},
	}, nil
}

// GetQuote returns a canned quote.
func (p *StaticProvider) GetQuote(_ context.Context, symbol string) (Quote, error) {
	if p.QuoteErr != nil {
		return Quote{}, p.QuoteErr
	}
	return Quote{Symbol: symbol, Price: 187.20}, nil
}

// GetFinancialInfo returns canned fundamentals.
func (p *StaticProvider) GetFinancialInfo(_ context.Context, symbol string) (FinancialInfo, error) {
	return FinancialInfo{Symbol: symbol, MarketCap: 2.9e12, PERatio: 31.4}, nil
}

package sandbox

import (
	"bufio"
	"encoding/json"
	"strings"

	"github.com/anthropics/tool-foundry/internal/domain"
)

// runnerResult is the JSON line the runner prints on success.
type runnerResult struct {
	OK     bool `json:"ok"`
	Result any  `json:"result"`
}

// ParseResult extracts the entry point's return value from a successful
// trace. The runner's result is the last JSON line on stdout; anything the
// tool itself printed above it is ignored. A trace that timed out or
// exited nonzero has no result by definition.
func ParseResult(trace domain.ExecutionTrace) (any, error) {
	if trace.TimedOut() || trace.ExitCode != 0 {
		return nil, domain.NewFoundryError(domain.ErrSandboxProtocol.Code, "trace did not finish cleanly")
	}

	var lastJSON string
	scanner := bufio.NewScanner(strings.NewReader(trace.Stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "{") {
			lastJSON = line
		}
	}
	if lastJSON == "" {
		return nil, domain.ErrSandboxProtocol
	}

	var rr runnerResult
	if err := json.Unmarshal([]byte(lastJSON), &rr); err != nil {
		return nil, domain.WrapFoundryError(domain.ErrSandboxProtocol.Code, domain.ErrSandboxProtocol.Message, err)
	}
	if !rr.OK {
		return nil, domain.ErrSandboxProtocol
	}
	return rr.Result, nil
}

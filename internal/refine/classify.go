// Package refine turns a failing submission into a passing one within a
// bounded number of patch attempts, or reports the full attempt history.
package refine

import (
	"strings"

	"github.com/anthropics/tool-foundry/internal/domain"
)

// classifier maps a stderr marker to an error kind and the repair
// strategy hint forwarded to the code generator. Order matters:
// ModuleNotFoundError subclasses ImportError in Python, so it must be
// tried first.
type classifier struct {
	marker string
	kind   domain.ErrorKind
	hint   string
}

var classifiers = []classifier{
	{"ModuleNotFoundError", domain.KindModuleNotFound,
		"A required module is not installed in the sandbox. Rewrite the tool using only allowed modules; replace talib or other TA libraries with equivalent pandas/numpy computations."},
	{"ImportError", domain.KindImport,
		"An import failed. Check the module name and import only from the category's allowed modules."},
	{"AssertionError", domain.KindAssertion,
		"A self-test assertion failed. Re-derive the expected values and fix the computation, not the assertion."},
	{"TypeError", domain.KindType,
		"A value had the wrong type. Check argument types and pandas/numpy dtype conversions."},
	{"ValueError", domain.KindValue,
		"A value was out of range or malformed. Validate inputs and intermediate results."},
	{"ZeroDivisionError", domain.KindZeroDivision,
		"A division by zero occurred. Guard denominators, e.g. flat price windows in ratio computations."},
	{"AttributeError", domain.KindAttribute,
		"An attribute lookup failed. Check object types and pandas API usage."},
	{"KeyError", domain.KindKey,
		"A dictionary or index key was missing. Check column names and required keys."},
	{"IndexError", domain.KindIndex,
		"A sequence index was out of range. Check window sizes against input length."},
}

// Classify matches stderr against the closed taxonomy and returns the
// error kind plus the repair hint for the patch request.
func Classify(stderr string) (domain.ErrorKind, string) {
	for _, c := range classifiers {
		if strings.Contains(stderr, c.marker) {
			return c.kind, c.hint
		}
	}
	return domain.KindUnknown,
		"The failure did not match a known class. Re-read the traceback and simplify the implementation."
}

// unfixableMarkers are error signatures for which retrying is known not to
// help: static security rejections, sandbox timeouts, and network or
// upstream failures that no patch to the tool source can cure.
var unfixableMarkers = []string{
	"SecurityViolation",
	"banned module",
	"banned call",
	"banned attribute",
	"TimeoutError",
	"timed out",
	"ConnectionError",
	"ConnectionRefusedError",
	"Connection refused",
	"ConnectionResetError",
	"NewConnectionError",
	"HTTPError",
	"Max retries exceeded",
	"upstream service",
	"Service Unavailable",
}

// Unfixable reports whether the failure text matches the unfixable set,
// returning the matched marker.
func Unfixable(text string) (string, bool) {
	for _, m := range unfixableMarkers {
		if strings.Contains(text, m) {
			return m, true
		}
	}
	return "", false
}

// RootCause extracts a bounded root-cause line from stderr: the last
// non-empty line, which in a Python traceback names the exception.
func RootCause(stderr string) string {
	lines := strings.Split(strings.TrimRight(stderr, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			if len(line) > 300 {
				line = line[:300]
			}
			return line
		}
	}
	return ""
}

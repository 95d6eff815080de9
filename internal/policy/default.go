package policy

// Default returns the built-in policy set used when no policy file is
// configured. The module lists describe Python, the language the sandbox
// runs; analysis happens on the Python AST regardless of what this engine
// itself is written in.
func Default() *Set {
	fs := fileSchema{
		Categories: map[string]Capability{
			"calculation": {
				Allowed: []string{"math", "statistics", "decimal", "datetime", "json", "typing", "pandas", "numpy"},
			},
			"fetch": {
				Allowed: []string{"datetime", "json", "typing", "pandas", "numpy", "yfinance"},
			},
			"composite": {
				Allowed: []string{"math", "statistics", "decimal", "datetime", "json", "typing", "pandas", "numpy", "yfinance"},
			},
		},
		// Banned regardless of category: raw OS access, subprocess control,
		// code-executing serialization, dynamic import, low-level networking.
		BannedModules: []string{
			"os", "sys", "subprocess", "shutil", "socket", "http",
			"pickle", "dill", "marshal", "shelve",
			"importlib", "ctypes", "builtins", "multiprocessing",
		},
		BannedCalls: []string{
			"eval", "exec", "compile", "__import__",
			"getattr", "setattr", "delattr",
			"globals", "locals", "vars", "open", "input",
		},
		BannedAttributes: []string{
			"__class__", "__bases__", "__mro__", "__subclasses__",
			"__globals__", "__closure__", "__code__", "__builtins__",
		},
		Contracts: []Contract{
			{
				ID:          "indicator_series",
				OutputType:  "series",
				ElementType: "number",
				MinLength:   1,
				RepresentativeArgs: map[string]any{
					"prices": []any{
						44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42,
						45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28, 46.00,
						46.03, 46.41, 46.22, 45.64,
					},
					"period": 14,
				},
			},
			{
				ID:         "indicator_value",
				OutputType: "number",
				Min:        floatPtr(0),
				Max:        floatPtr(100),
				RepresentativeArgs: map[string]any{
					"prices": []any{
						44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42,
						45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28, 46.00,
						46.03, 46.41, 46.22, 45.64,
					},
					"period": 14,
				},
			},
			{
				ID:           "quote_mapping",
				OutputType:   "mapping",
				RequiredKeys: []string{"symbol", "price"},
				RepresentativeArgs: map[string]any{
					"symbol": "AAPL",
				},
			},
		},
	}

	s, err := build(fs)
	if err != nil {
		// The built-in policy is validated by tests; a failure here is a
		// programming error, not a runtime condition.
		panic(err)
	}
	return s
}

func floatPtr(f float64) *float64 { return &f }

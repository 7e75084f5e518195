package main

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIDeclaration is a JSON-friendly declaration from a parsed file.
type CLIDeclaration struct {
	File      string `json:"file"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Depth     int    `json:"depth"`
	StartByte int    `json:"start_byte"`
	EndByte   int    `json:"end_byte"`
	Line      int    `json:"line"`
}

// CLIInvalidation is one declaration an edit invalidated.
type CLIInvalidation struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	StartByte int    `json:"start_byte"`
	EndByte   int    `json:"end_byte"`
}

// CLIEdit reports the outcome of one edit.
type CLIEdit struct {
	File        string            `json:"file"`
	Op          string            `json:"op"`
	Target      string            `json:"target"`
	Suppressed  bool              `json:"suppressed"`
	Invalidated []CLIInvalidation `json:"invalidated"`
	Recorded    int64             `json:"recorded,omitempty"`
	HookRuns    int64             `json:"hook_runs,omitempty"`
}

// CLIDirty is a declaration the freshness cache holds as dirty.
type CLIDirty struct {
	ID            int64  `json:"id"`
	File          string `json:"file"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	StartByte     int    `json:"start_byte"`
	EndByte       int    `json:"end_byte"`
	Generation    int    `json:"generation"`
	Invalidations int    `json:"invalidations"`
	External      int    `json:"external"`
}

// CLIStatus is the result of the status command.
type CLIStatus struct {
	Dirty   []CLIDirty `json:"dirty"`
	Cleared int64      `json:"cleared,omitempty"`
}

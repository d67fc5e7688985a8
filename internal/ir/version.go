package ir

// Version constants for the IR schema and toolchain.
const (
	// IRVersion is the IR schema version written into every document.
	IRVersion = "1"

	// ToolVersion is the solforge toolchain version stamped into generated
	// sources.
	ToolVersion = "0.1.0"
)

package ir

// Version constants for the IR schema and the generator.
const (
	// IRVersion is the model IR schema version.
	IRVersion = "1"

	// GeneratorVersion is stamped into every generated kernel header.
	GeneratorVersion = "0.1.0"
)

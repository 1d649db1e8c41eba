package ir

// Version constants for the routine IR and the control core.
const (
	// IRVersion is the routine IR schema version.
	IRVersion = "1"

	// EngineVersion is the robotcore version.
	EngineVersion = "0.1.0"
)

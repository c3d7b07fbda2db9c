package ir

// Version constants for the data model and engine.
const (
	// ModelVersion is the data model schema version.
	ModelVersion = "1"

	// EngineVersion is the weft engine version.
	EngineVersion = "0.1.0"
)

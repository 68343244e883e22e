package task

// CandidateScore holds the six sub-scores computed for one (task,
// processor) pair. All sub-scores and the overall score are in [0,1].
type CandidateScore struct {
	ProcessorID         string  `json:"processor_id"`
	SemanticRelevance   float64 `json:"semantic_relevance"`
	PriceScore          float64 `json:"price_score"`
	ReputationScore     float64 `json:"reputation_score"`
	ReliabilityScore    float64 `json:"reliability_score"`
	SpeedScore          float64 `json:"speed_score"`
	SchemaCompatibility float64 `json:"schema_compatibility"`
	OverallScore        float64 `json:"overall_score"`
	PriceQuote          float64 `json:"price_quote"`
	EstimatedDurationMs int64   `json:"estimated_duration_ms"`
}

// RankedCandidate is one entry of the final ranked list. Ranks are
// dense and start at 1.
type RankedCandidate struct {
	ProcessorID       string          `json:"processor_id"`
	Rank              int             `json:"rank"`
	Score             *CandidateScore `json:"score,omitempty"`
	ProcessorMetadata *Processor      `json:"processor_metadata,omitempty"`
	Justification     string          `json:"justification,omitempty"`
}

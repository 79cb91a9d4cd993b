package contextmarkup

// Block types.
const (
	TypeResource  = "resource"
	TypeReasoning = "reasoning"
)

// Schema URNs carried in block bodies.
const (
	SchemaSearchResult     = "urn:am7:vector:search-result"
	SchemaReminder         = "urn:am7:narrative:reminder"
	SchemaKeyframe         = "urn:am7:narrative:keyframe"
	SchemaMetrics          = "urn:am7:biometric:metrics"
	SchemaDocumentSummary  = "urn:am7:document:summary"
	SchemaDocument         = "urn:am7:data:document"
	SchemaImageDescription = "urn:am7:media:image-description"
	SchemaStepOutput       = "urn:am7:chain:step-output"
	SchemaToolMemory       = "urn:am7:tool:memory"
)

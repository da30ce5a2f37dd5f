package lsp

// CapabilitySupport classifies how well a backend supports a feature.
type CapabilitySupport string

const (
	// SupportFull: the feature works reliably, including cross-file.
	SupportFull CapabilitySupport = "full"
	// SupportPartial: the feature works for common cases only.
	SupportPartial CapabilitySupport = "partial"
	// SupportFallback: skip the native request and use the fallback strategy.
	SupportFallback CapabilitySupport = "fallback"
	// SupportUnknown: attempt the native request, fall back only on error.
	// Default for any language not explicitly classified, so the matrix
	// degrades gracefully as new backends are added.
	SupportUnknown CapabilitySupport = "unknown"
)

// Feature names the capability-gated operations.
type Feature string

const (
	FeatureReferences      Feature = "references"
	FeatureCallHierarchy   Feature = "callHierarchy"
	FeatureDocumentSymbols Feature = "documentSymbols"
	FeatureCompletions     Feature = "completions"
)

// capabilityMatrix is the static, process-wide support classification per
// (language, feature). Read-only after initialization.
var capabilityMatrix = map[string]map[Feature]CapabilitySupport{
	"go": {
		FeatureReferences:    SupportFull,
		FeatureCallHierarchy: SupportFull,
	},
	"python": {
		FeatureReferences:    SupportFull,
		FeatureCallHierarchy: SupportFull,
	},
	"typescript": {
		FeatureReferences:    SupportFull,
		FeatureCallHierarchy: SupportFull,
	},
	"javascript": {
		FeatureReferences:    SupportFull,
		FeatureCallHierarchy: SupportFull,
	},
	"rust": {
		FeatureReferences:    SupportFull,
		FeatureCallHierarchy: SupportFull,
	},
	"csharp": {
		FeatureReferences:    SupportFull,
		FeatureCallHierarchy: SupportFull,
	},
	"php": {
		FeatureReferences:    SupportPartial,
		FeatureCallHierarchy: SupportPartial,
	},
	"ruby": {
		FeatureReferences:    SupportPartial,
		FeatureCallHierarchy: SupportPartial,
	},
	"fsharp": {
		FeatureReferences:    SupportPartial,
		FeatureCallHierarchy: SupportFallback,
	},
	"erlang": {
		FeatureReferences:    SupportFallback,
		FeatureCallHierarchy: SupportFallback,
	},
	"terraform": {
		FeatureReferences:    SupportFallback,
		FeatureCallHierarchy: SupportFallback,
	},
	"bash": {
		FeatureReferences:    SupportFallback,
		FeatureCallHierarchy: SupportFallback,
	},
}

// SupportLevel returns the support classification for (language, feature).
// Unclassified pairs report SupportUnknown.
func SupportLevel(language string, feature Feature) CapabilitySupport {
	if features, ok := capabilityMatrix[language]; ok {
		if level, ok := features[feature]; ok {
			return level
		}
	}
	return SupportUnknown
}

// ShouldFallbackToReferences reports whether the language should skip the
// native call/reference hierarchy entirely. True only for SupportFallback;
// SupportUnknown means attempt first.
func ShouldFallbackToReferences(language string) bool {
	return SupportLevel(language, FeatureCallHierarchy) == SupportFallback
}

package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Configuration (S001-S019)
	// ============================================

	"S001": {
		Category:   CategoryConfig,
		Message:    "Configuration file not found",
		Suggestion: "Run 'commutesync init' or create commutesync.json manually",
	},
	"S002": {
		Category:   CategoryConfig,
		Message:    "Invalid configuration file",
		Suggestion: "Check that commutesync.json is valid JSON",
	},
	"S003": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
	},
	"S004": {
		Category:   CategoryConfig,
		Message:    "Invalid environment override",
		Suggestion: "Check the COMMUTESYNC_* environment variables",
	},

	// ============================================
	// Storage (S020-S039)
	// ============================================

	"S020": {
		Category: CategoryStorage,
		Message:  "Storage read failed",
	},
	"S021": {
		Category: CategoryStorage,
		Message:  "Storage write failed",
	},
	"S022": {
		Category: CategoryStorage,
		Message:  "Storage area is closed",
	},
	"S023": {
		Category:   CategoryStorage,
		Message:    "Unknown storage driver",
		Suggestion: "Use one of: memory, sqlite, s3",
	},
	"S024": {
		Category: CategoryStorage,
		Message:  "Failed to open storage",
	},

	// ============================================
	// Transport (S040-S059)
	// ============================================

	"S040": {
		Category: CategoryTransport,
		Message:  "Message delivery failed",
	},
	"S041": {
		Category: CategoryTransport,
		Message:  "Port is closed",
	},
	"S042": {
		Category: CategoryTransport,
		Message:  "No receiver for runtime message",
	},
	"S043": {
		Category:   CategoryTransport,
		Message:    "WebSocket connection failed",
		Suggestion: "Check that 'commutesync serve' is running and reachable",
	},

	// ============================================
	// Decode (S060-S069)
	// ============================================

	"S060": {
		Category: CategoryDecode,
		Message:  "Malformed stored value",
	},
	"S061": {
		Category: CategoryDecode,
		Message:  "Malformed message payload",
	},

	// ============================================
	// Registry (S070-S079)
	// ============================================

	"S070": {
		Category: CategoryRegistry,
		Message:  "Tracked key already registered",
	},
	"S071": {
		Category: CategoryRegistry,
		Message:  "Invalid tracked key",
	},
	"S072": {
		Category: CategoryRegistry,
		Message:  "Store is closed",
	},

	// ============================================
	// Fetch proxy (S080-S089)
	// ============================================

	"S080": {
		Category: CategoryProxy,
		Message:  "Proxied request failed",
	},
	"S081": {
		Category: CategoryProxy,
		Message:  "Unknown proxy error",
	},

	// ============================================
	// CLI (S090-S099)
	// ============================================

	"S090": {
		Category:   CategoryCLI,
		Message:    "Unknown tracked key",
		Suggestion: "Use 'addresses' or 'thresholds'",
	},
	"S091": {
		Category:   CategoryCLI,
		Message:    "Invalid value argument",
		Suggestion: "Pass the value as JSON, e.g. '[\"Main St\"]'",
	},
}

// Lookup returns the template for a code.
func Lookup(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

package errors

import (
	"sort"

	"github.com/vango-dev/fluxstore/pkg/notify"
)

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string

	// Hint is the default suggestion for usage errors.
	Hint string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Usage Errors (E101-E119)
	// ============================================

	notify.CodeUntypedSelection: {
		Category: CategoryUsage,
		Message:  "Typeless change reached a key selection",
		Detail:   "A subscription that selects keys received a change that does not name any key, so it cannot decide whether to refresh.",
		Hint:     "Call EmitChange with the changed keys, or subscribe without a selection",
	},
	notify.CodeUntypedEmit: {
		Category: CategoryUsage,
		Message:  "Typeless change on a strict store",
		Detail:   "The store was created with WithStrictChannel and every emitted change must name at least one key.",
		Hint:     "Pass the changed keys to EmitChange",
	},
	notify.CodeLockedAccessor: {
		Category: CategoryUsage,
		Message:  "Accessor read after commit",
		Detail:   "An ephemeral accessor only records keys until Commit. Reading through it afterwards would miss the subscription.",
		Hint:     "Read every key before calling Commit",
	},
	notify.CodeUnsupportedKeyMap: {
		Category: CategoryUsage,
		Message:  "Unsupported key selection",
		Detail:   "A key selection must be a list of keys, a set of keys or a mapping from store keys to prop names.",
		Hint:     "Use []string, map[string]bool or keymap.KeyMap",
	},

	// ============================================
	// Configuration Errors (E120-E139)
	// ============================================

	"E120": {
		Category: CategoryConfig,
		Message:  "Invalid configuration file",
		Detail:   "The configuration file could not be parsed as YAML.",
	},
	"E121": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Detail:   "A configuration value is outside the accepted range.",
	},
	"E122": {
		Category: CategoryConfig,
		Message:  "Invalid listen address",
		Detail:   "The inspector address must have the form host:port.",
	},
	"E123": {
		Category: CategoryConfig,
		Message:  "Invalid seed store",
		Detail:   "Every seed store needs a unique name.",
	},
	"E124": {
		Category: CategoryConfig,
		Message:  "Unknown storage backend",
		Detail:   "The state storage backend must be memory or s3.",
	},
	"E125": {
		Category: CategoryConfig,
		Message:  "Environment variable not set",
		Detail:   "The configuration references an environment variable that is not set and has no default.",
	},

	// ============================================
	// CLI Errors (E140-E159)
	// ============================================

	"E140": {
		Category: CategoryCLI,
		Message:  "Configuration file not found",
		Detail:   "The configuration file passed with --config does not exist.",
	},
	"E141": {
		Category: CategoryCLI,
		Message:  "Inspector failed to start",
		Detail:   "The inspector could not listen on the configured address.",
	},
	"E142": {
		Category: CategoryCLI,
		Message:  "Unknown store",
		Detail:   "No store with this name is configured.",
	},

	// ============================================
	// Storage Errors (E160-E179)
	// ============================================

	"E160": {
		Category: CategoryStorage,
		Message:  "Reading saved state failed",
		Detail:   "The state storage backend returned an error while reading.",
	},
	"E161": {
		Category: CategoryStorage,
		Message:  "Writing state failed",
		Detail:   "The state storage backend returned an error while writing.",
	},
}

// GetAllCodes returns all registered error codes, sorted.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a custom error template.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}

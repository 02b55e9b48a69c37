package session

// managedTools is the fixed set of agent tools the service mediates.
// Requests for tools outside this set are denied before they ever
// reach the interactive gate.
var managedTools = map[string]struct{}{
	"Read":      {},
	"Write":     {},
	"Edit":      {},
	"MultiEdit": {},
	"Bash":      {},
	"Glob":      {},
	"Grep":      {},
}

// IsManagedTool reports whether the service mediates the named tool.
func IsManagedTool(name string) bool {
	_, ok := managedTools[name]
	return ok
}

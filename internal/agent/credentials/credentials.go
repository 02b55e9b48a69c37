// Package credentials collects the environment the agent process needs
// from the service's own environment: the model API key and the tokens
// git operations inside the workspace depend on.
package credentials

import (
	"fmt"
	"os"
	"strings"
)

// envPrefix lets deployments scope agent-only values, e.g.
// REVIEWD_GITHUB_TOKEN overrides GITHUB_TOKEN for the agent without
// leaking into the service's own git usage.
const envPrefix = "REVIEWD_AGENT_"

// forwardedKeys are looked up in order: prefixed first, then bare.
var forwardedKeys = []string{
	"ANTHROPIC_API_KEY",
	"CLAUDE_CODE_OAUTH_TOKEN",
	"GITHUB_TOKEN",
	"GH_TOKEN",
	"GIT_SSH_COMMAND",
	"HTTP_PROXY",
	"HTTPS_PROXY",
	"NO_PROXY",
}

// Credential is one resolved key/value pair.
type Credential struct {
	Key    string
	Value  string
	Source string // bare env name or the prefixed override
}

// Lookup resolves one key, preferring the prefixed override.
func Lookup(key string) (*Credential, error) {
	if v := os.Getenv(envPrefix + key); v != "" {
		return &Credential{Key: key, Value: v, Source: envPrefix + key}, nil
	}
	if v := os.Getenv(key); v != "" {
		return &Credential{Key: key, Value: v, Source: key}, nil
	}
	return nil, fmt.Errorf("credential not found: %s", key)
}

// AgentEnv builds the KEY=value pairs forwarded to the agent process.
// Missing keys are simply omitted; whether the agent can run without a
// given credential is its own concern.
func AgentEnv() []string {
	env := make([]string, 0, len(forwardedKeys))
	for _, key := range forwardedKeys {
		cred, err := Lookup(key)
		if err != nil {
			continue
		}
		env = append(env, key+"="+cred.Value)
	}
	return env
}

// Redact masks a credential value for logs, keeping a short suffix so
// operators can tell two tokens apart.
func Redact(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", 8) + value[len(value)-4:]
}

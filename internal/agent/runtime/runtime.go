// Package runtime starts and talks to the agent CLI process, either as
// a local subprocess or inside a Docker container. Both runtimes speak
// the same line-delimited stream-json protocol on stdin/stdout.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/TRob9/claude-github-buddy/internal/common/config"
	"github.com/TRob9/claude-github-buddy/internal/common/logger"
	"github.com/TRob9/claude-github-buddy/pkg/agent/protocol"
)

// Runtime is one agent process for one run.
type Runtime interface {
	// Start launches the agent in the given working directory. Events
	// begin flowing on Events() until the process exits, after which
	// the channel is closed.
	Start(ctx context.Context, workdir string) error

	// Events streams decoded agent output.
	Events() <-chan *protocol.Event

	// Prompt writes one user turn to the agent's stdin.
	Prompt(ctx context.Context, text string) error

	// Respond answers a control request on the agent's stdin.
	Respond(requestID string, reply protocol.PermissionReply) error

	// Stop terminates the agent process, forcefully if it does not
	// exit within a grace period.
	Stop(ctx context.Context) error
}

// Factory builds a fresh runtime per run from configuration.
type Factory func(sessionID string) (Runtime, error)

// NewFactory selects the runtime implementation from config.
func NewFactory(cfg config.AgentConfig, env []string, log *logger.Logger) (Factory, error) {
	switch cfg.Runtime {
	case "", "subprocess":
		return func(sessionID string) (Runtime, error) {
			return NewSubprocess(cfg, env, sessionID, log), nil
		}, nil
	case "docker":
		client, err := NewDockerClient(cfg.DockerHost, log)
		if err != nil {
			return nil, fmt.Errorf("docker runtime: %w", err)
		}
		return func(sessionID string) (Runtime, error) {
			return NewDockerRuntime(client, cfg, env, sessionID, log), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown agent runtime %q", cfg.Runtime)
	}
}

// defaultArgs is the invocation shape shared by both runtimes: prompts
// and control responses ride stdin, events ride stdout.
var defaultArgs = []string{
	"--output-format", "stream-json",
	"--input-format", "stream-json",
	"--verbose",
}

// buildArgs merges the fixed protocol flags with configured extras.
func buildArgs(cfg config.AgentConfig) []string {
	args := make([]string, 0, len(defaultArgs)+len(cfg.Args))
	args = append(args, defaultArgs...)
	args = append(args, cfg.Args...)
	return args
}

// userMessage is the stream-json shape of one user turn.
type userMessage struct {
	Type    string `json:"type"`
	Message struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
}

func encodeUserMessage(text string) ([]byte, error) {
	var msg userMessage
	msg.Type = "user"
	msg.Message.Role = "user"
	msg.Message.Content = []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{{Type: "text", Text: text}}
	return json.Marshal(&msg)
}

// stdinWriter serializes line writes to the agent's stdin across the
// prompting goroutine and permission responders.
type stdinWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *stdinWriter) writeLine(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return fmt.Errorf("agent stdin closed")
	}
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write to agent stdin: %w", err)
	}
	return nil
}

func (s *stdinWriter) writeRaw(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return fmt.Errorf("agent stdin closed")
	}
	if _, err := s.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write to agent stdin: %w", err)
	}
	return nil
}

func (s *stdinWriter) detach() {
	s.mu.Lock()
	s.w = nil
	s.mu.Unlock()
}

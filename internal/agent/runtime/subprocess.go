package runtime

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/TRob9/claude-github-buddy/internal/common/config"
	"github.com/TRob9/claude-github-buddy/internal/common/logger"
	"github.com/TRob9/claude-github-buddy/pkg/agent/protocol"
)

// Output lines can carry whole file contents inside tool results.
const maxLineSize = 10 * 1024 * 1024

const stopGracePeriod = 5 * time.Second

// Subprocess runs the agent CLI as a local child process.
type Subprocess struct {
	command   string
	args      []string
	env       []string
	sessionID string
	logger    *logger.Logger

	cmd         *exec.Cmd
	stdin       *stdinWriter
	stdinCloser io.Closer
	events      chan *protocol.Event
	exited      chan struct{}
}

// NewSubprocess builds an unstarted subprocess runtime. env entries are
// appended to the parent environment.
func NewSubprocess(cfg config.AgentConfig, env []string, sessionID string, log *logger.Logger) *Subprocess {
	return &Subprocess{
		command:   cfg.Command,
		args:      buildArgs(cfg),
		env:       env,
		sessionID: sessionID,
		logger: log.WithFields(
			zap.String("component", "agent-subprocess"),
			zap.String("session_id", sessionID)),
		events: make(chan *protocol.Event, 64),
		exited: make(chan struct{}),
	}
}

func (s *Subprocess) Start(ctx context.Context, workdir string) error {
	cmd := exec.CommandContext(ctx, s.command, s.args...)
	cmd.Dir = workdir
	cmd.Env = append(os.Environ(), s.env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("agent stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("agent stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("agent stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start agent %s: %w", s.command, err)
	}
	s.cmd = cmd
	s.stdin = &stdinWriter{w: stdin}
	s.stdinCloser = stdin

	s.logger.Info("agent started",
		zap.String("command", s.command),
		zap.String("workdir", workdir),
		zap.Int("pid", cmd.Process.Pid))

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			s.logger.Debug("agent stderr", zap.String("line", scanner.Text()))
		}
	}()

	go func() {
		defer close(s.events)
		defer close(s.exited)

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			evs, err := protocol.ParseLine(scanner.Bytes())
			if err != nil {
				s.logger.Warn("skipping malformed agent output", zap.Error(err))
				continue
			}
			for _, ev := range evs {
				select {
				case s.events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			s.logger.Warn("agent stdout read ended", zap.Error(err))
		}

		s.stdin.detach()
		if err := cmd.Wait(); err != nil {
			s.logger.Info("agent exited", zap.Error(err))
		} else {
			s.logger.Info("agent exited")
		}
	}()

	return nil
}

func (s *Subprocess) Events() <-chan *protocol.Event {
	return s.events
}

func (s *Subprocess) Prompt(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := encodeUserMessage(text)
	if err != nil {
		return err
	}
	return s.stdin.writeRaw(line)
}

func (s *Subprocess) Respond(requestID string, reply protocol.PermissionReply) error {
	return s.stdin.writeLine(protocol.NewControlResponse(requestID, reply))
}

// Stop closes stdin so the agent can finish its current message, then
// kills the process if it has not exited within the grace period.
func (s *Subprocess) Stop(ctx context.Context) error {
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	s.stdin.detach()
	s.stdinCloser.Close()

	select {
	case <-s.exited:
		return nil
	case <-time.After(stopGracePeriod):
	case <-ctx.Done():
	}

	s.logger.Warn("killing agent process", zap.Int("pid", s.cmd.Process.Pid))
	if err := s.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill agent: %w", err)
	}
	return nil
}

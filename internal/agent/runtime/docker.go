package runtime

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"github.com/TRob9/claude-github-buddy/internal/common/config"
	"github.com/TRob9/claude-github-buddy/internal/common/logger"
	"github.com/TRob9/claude-github-buddy/pkg/agent/protocol"
)

// workspaceMount is where the prepared working copy appears inside the
// agent container.
const workspaceMount = "/workspace"

// DockerClient wraps the Docker SDK with the operations the agent
// runtime needs: pull, create with attached stdio, start, stop, remove.
type DockerClient struct {
	cli    *client.Client
	logger *logger.Logger
}

// NewDockerClient connects to the Docker daemon.
func NewDockerClient(host string, log *logger.Logger) (*DockerClient, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	log.Info("docker client created", zap.String("host", host))
	return &DockerClient{
		cli:    cli,
		logger: log.WithFields(zap.String("component", "docker")),
	}, nil
}

// Close releases the daemon connection.
func (d *DockerClient) Close() error {
	return d.cli.Close()
}

// pullImage fetches the agent image, draining the progress stream so
// the pull completes before the container is created.
func (d *DockerClient) pullImage(ctx context.Context, imageName string) error {
	d.logger.Info("pulling image", zap.String("image", imageName))
	reader, err := d.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", imageName, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("read image pull output: %w", err)
	}
	return nil
}

// DockerRuntime runs the agent CLI inside a container, with the
// prepared working copy bind-mounted at a fixed path and stdio carried
// over a hijacked attach connection.
type DockerRuntime struct {
	docker    *DockerClient
	imageName string
	command   string
	args      []string
	env       []string
	sessionID string
	logger    *logger.Logger

	containerID string
	conn        io.Closer
	stdin       *stdinWriter
	events      chan *protocol.Event
	exited      chan struct{}
}

// NewDockerRuntime builds an unstarted containerized runtime.
func NewDockerRuntime(docker *DockerClient, cfg config.AgentConfig, env []string, sessionID string, log *logger.Logger) *DockerRuntime {
	return &DockerRuntime{
		docker:    docker,
		imageName: cfg.DockerImage,
		command:   cfg.Command,
		args:      buildArgs(cfg),
		env:       env,
		sessionID: sessionID,
		logger: log.WithFields(
			zap.String("component", "agent-container"),
			zap.String("session_id", sessionID)),
		events: make(chan *protocol.Event, 64),
		exited: make(chan struct{}),
	}
}

func (d *DockerRuntime) Start(ctx context.Context, workdir string) error {
	if err := d.docker.pullImage(ctx, d.imageName); err != nil {
		return err
	}

	cmd := append([]string{d.command}, d.args...)
	// Tty keeps stdout unmultiplexed so the line scanner can read it
	// directly off the hijacked connection.
	containerCfg := &container.Config{
		Image:        d.imageName,
		Cmd:          cmd,
		Env:          d.env,
		WorkingDir:   workspaceMount,
		OpenStdin:    true,
		StdinOnce:    true,
		AttachStdin:  true,
		AttachStdout: true,
		Tty:          true,
		Labels: map[string]string{
			"reviewd.session": d.sessionID,
		},
	}
	hostCfg := &container.HostConfig{
		AutoRemove: false,
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: workdir,
			Target: workspaceMount,
		}},
	}

	name := "reviewd-agent-" + d.sessionID
	resp, err := d.docker.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name)
	if err != nil {
		return fmt.Errorf("create agent container: %w", err)
	}
	d.containerID = resp.ID

	attach, err := d.docker.cli.ContainerAttach(ctx, resp.ID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
	})
	if err != nil {
		d.cleanup(ctx)
		return fmt.Errorf("attach agent container: %w", err)
	}
	d.conn = attach.Conn
	d.stdin = &stdinWriter{w: attach.Conn}

	if err := d.docker.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		attach.Close()
		d.cleanup(ctx)
		return fmt.Errorf("start agent container: %w", err)
	}

	d.logger.Info("agent container started",
		zap.String("container_id", resp.ID),
		zap.String("image", d.imageName),
		zap.String("workdir", workdir))

	go func() {
		defer close(d.events)
		defer close(d.exited)

		scanner := bufio.NewScanner(attach.Reader)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			evs, err := protocol.ParseLine(scanner.Bytes())
			if err != nil {
				d.logger.Warn("skipping malformed agent output", zap.Error(err))
				continue
			}
			for _, ev := range evs {
				select {
				case d.events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}

		d.stdin.detach()
		d.logger.Info("agent container stream ended")
	}()

	return nil
}

func (d *DockerRuntime) Events() <-chan *protocol.Event {
	return d.events
}

func (d *DockerRuntime) Prompt(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := encodeUserMessage(text)
	if err != nil {
		return err
	}
	return d.stdin.writeRaw(line)
}

func (d *DockerRuntime) Respond(requestID string, reply protocol.PermissionReply) error {
	return d.stdin.writeLine(protocol.NewControlResponse(requestID, reply))
}

func (d *DockerRuntime) Stop(ctx context.Context) error {
	if d.containerID == "" {
		return nil
	}
	d.stdin.detach()
	if d.conn != nil {
		d.conn.Close()
	}

	select {
	case <-d.exited:
	case <-time.After(stopGracePeriod):
		timeout := int(stopGracePeriod.Seconds())
		if err := d.docker.cli.ContainerStop(ctx, d.containerID, container.StopOptions{Timeout: &timeout}); err != nil {
			d.logger.Warn("failed to stop agent container", zap.Error(err))
		}
	case <-ctx.Done():
	}

	d.cleanup(context.WithoutCancel(ctx))
	return nil
}

func (d *DockerRuntime) cleanup(ctx context.Context) {
	if d.containerID == "" {
		return
	}
	err := d.docker.cli.ContainerRemove(ctx, d.containerID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil {
		d.logger.Warn("failed to remove agent container",
			zap.String("container_id", d.containerID),
			zap.Error(err))
	}
}

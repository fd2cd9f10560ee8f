package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const dockerDriver = "docker"

// DockerConfig groups Docker driver settings.
type DockerConfig struct {
	Host          string
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
	WorkingDir    string
	WorkspaceRoot string
	Languages     map[int]Language
	Logger        zerolog.Logger
}

// DockerSandbox runs each submission in a throwaway container with no network.
type DockerSandbox struct {
	client *client.Client
	cfg    DockerConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// containerRun is what one container reported back.
type containerRun struct {
	stdout   string
	stderr   string
	exitCode int
	timedOut bool
}

// NewDockerSandbox connects to the Docker daemon.
func NewDockerSandbox(cfg DockerConfig) (*DockerSandbox, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.WorkingDir == "" {
		cfg.WorkingDir = "/workspace"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = DefaultLanguages
	}

	return &DockerSandbox{
		client: cli,
		cfg:    cfg,
		tracer: otel.Tracer("jobify/pkg/sandbox"),
		logger: cfg.Logger.With().Str("component", "docker_sandbox").Logger(),
	}, nil
}

// Execute writes the submission into a scratch workspace, runs it, and maps
// the container outcome onto Judge0 style statuses.
func (s *DockerSandbox) Execute(parent context.Context, submission Submission) (Result, error) {
	language, ok := s.cfg.Languages[submission.LanguageID]
	if !ok {
		return Result{
			Status:  StatusInternalError,
			Message: fmt.Sprintf("language %d is not supported", submission.LanguageID),
		}, nil
	}

	ctx, span := s.tracer.Start(parent, "sandbox.docker.execute", trace.WithAttributes(
		attribute.String("docker.image", language.Image),
		attribute.Int("sandbox.language_id", language.ID),
	))
	defer span.End()

	workspace, err := os.MkdirTemp(s.cfg.WorkspaceRoot, "sandbox-*")
	if err != nil {
		return Result{}, fmt.Errorf("%w: create workspace: %v", ErrUnavailable, err)
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			s.logger.Error().Err(err).Str("workspace", workspace).Msg("failed to remove workspace")
		}
	}()

	if err := prepareWorkspace(workspace, language, submission); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	start := time.Now()
	run, err := s.runContainer(ctx, language.Image, language.script(), workspace)
	executionDuration.WithLabelValues(dockerDriver).Observe(time.Since(start).Seconds())
	if err != nil {
		executionFailures.WithLabelValues(dockerDriver).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	result := Result{Stdout: run.stdout, Stderr: run.stderr}
	switch {
	case run.timedOut:
		executionTimeouts.WithLabelValues(dockerDriver).Inc()
		result.Status = StatusTimeLimitExceeded
	case language.Compile != "" && run.exitCode == compileFailedExit:
		result.Status = StatusCompilationError
		if output, readErr := os.ReadFile(filepath.Join(workspace, compileOutputFile)); readErr == nil {
			result.CompileOutput = string(output)
		}
	case run.exitCode != 0:
		result.Status = StatusRuntimeError
		result.Message = fmt.Sprintf("Exited with error status %d", run.exitCode)
	default:
		result.Status = StatusAccepted
	}

	span.SetAttributes(attribute.String("sandbox.status", result.Status))
	return result, nil
}

func prepareWorkspace(dir string, language Language, submission Submission) error {
	if err := os.Chmod(dir, 0o777); err != nil {
		return fmt.Errorf("chmod workspace: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, language.File), []byte(submission.SourceCode), 0o644); err != nil {
		return fmt.Errorf("write source: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, stdinFile), []byte(submission.Stdin), 0o644); err != nil {
		return fmt.Errorf("write stdin: %w", err)
	}
	return nil
}

func (s *DockerSandbox) runContainer(parent context.Context, image, script, workspace string) (containerRun, error) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.Timeout)
	defer cancel()

	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:    s.cfg.MemoryLimitMB * 1024 * 1024,
			CPUShares: s.cfg.CPUShares,
		},
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: workspace,
			Target: s.cfg.WorkingDir,
		}},
	}

	config := &container.Config{
		Image:           image,
		Cmd:             []string{"sh", "-c", script},
		WorkingDir:      s.cfg.WorkingDir,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: true,
	}

	run := containerRun{}

	resp, err := s.client.ContainerCreate(ctx, config, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return run, fmt.Errorf("container create: %w", err)
	}

	containerID := resp.ID
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			s.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
		}
	}()

	if err := s.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return run, fmt.Errorf("container start: %w", err)
	}

	statusCh, errCh := s.client.ContainerWait(ctx, containerID, container.WaitConditionNextExit)

	var waitErr error
	select {
	case err := <-errCh:
		waitErr = err
	case status := <-statusCh:
		run.exitCode = int(status.StatusCode)
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	if waitErr != nil {
		if parent.Err() != nil {
			return run, parent.Err()
		}
		if !errors.Is(waitErr, context.DeadlineExceeded) && ctx.Err() == nil {
			return run, fmt.Errorf("container wait: %w", waitErr)
		}
		run.timedOut = true
		killCtx, cancelKill := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancelKill()
		if err := s.client.ContainerKill(killCtx, containerID, "KILL"); err != nil {
			s.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to kill timed out container")
		}
	}

	logsCtx, cancelLogs := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelLogs()
	stdout, stderr, err := collectLogs(logsCtx, s.client, containerID)
	if err != nil {
		return run, err
	}
	run.stdout = stdout
	run.stderr = stderr
	return run, nil
}

// logSource is the slice of the Docker API needed to read container output.
type logSource interface {
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
}

// collectLogs reads the multiplexed stdout and stderr of a finished container.
// A container whose output cannot be read has no verdict.
func collectLogs(ctx context.Context, source logSource, containerID string) (string, string, error) {
	reader, err := source.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", fmt.Errorf("container logs: %w", err)
	}
	defer reader.Close()

	stdout, stderr, err := splitDockerLogs(reader)
	if err != nil {
		return "", "", fmt.Errorf("container logs: %w", err)
	}
	return stdout, stderr, nil
}

func splitDockerLogs(reader io.Reader) (string, string, error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, reader); err != nil {
		return "", "", err
	}
	return stdoutBuf.String(), stderrBuf.String(), nil
}

// Close shuts down the underlying Docker client.
func (s *DockerSandbox) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

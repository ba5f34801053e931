package node

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/dockhand/dockhand/pkg/protocol"
)

// Follow-mode log collection is bounded so a logs request always
// completes well inside the caller's deadline.
const (
	followWindow   = 5 * time.Second
	maxFollowLines = 1000
)

// Engine abstracts the local container runtime. The Docker
// implementation talks to the daemon socket; tests substitute a stub.
type Engine interface {
	ListContainers(ctx context.Context) ([]string, error)
	ListContainersWithStatus(ctx context.Context) ([]protocol.ContainerStatus, error)
	ContainerStatus(ctx context.Context, containerID string) (protocol.ContainerStatus, error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string) error
	DeleteContainer(ctx context.Context, containerID string) error
	ContainerLogs(ctx context.Context, containerID string, tail int, follow bool, since string) ([]string, error)
	// WatchContainers emits a signal whenever the set of containers or
	// their run state changes. The channel closes when ctx ends.
	WatchContainers(ctx context.Context) (<-chan struct{}, error)
	Close() error
}

type dockerEngine struct {
	cli *client.Client
}

// NewDockerEngine connects to the local Docker daemon using the
// standard environment (DOCKER_HOST et al.).
func NewDockerEngine() (Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &dockerEngine{cli: cli}, nil
}

func (e *dockerEngine) ListContainers(ctx context.Context) ([]string, error) {
	list, err := e.cli.ContainerList(ctx, types.ContainerListOptions{All: true})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list))
	for _, c := range list {
		names = append(names, containerName(c))
	}
	return names, nil
}

func (e *dockerEngine) ListContainersWithStatus(ctx context.Context) ([]protocol.ContainerStatus, error) {
	list, err := e.cli.ContainerList(ctx, types.ContainerListOptions{All: true})
	if err != nil {
		return nil, err
	}
	statuses := make([]protocol.ContainerStatus, 0, len(list))
	for _, c := range list {
		st, err := e.ContainerStatus(ctx, containerName(c))
		if err != nil {
			// The container may have vanished between list and inspect.
			continue
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func (e *dockerEngine) ContainerStatus(ctx context.Context, containerID string) (protocol.ContainerStatus, error) {
	info, err := e.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return protocol.ContainerStatus{}, err
	}
	st := protocol.ContainerStatus{
		ContainerID: containerID,
		Created:     parseDockerTime(info.Created),
	}
	if info.State != nil {
		st.Status = info.State.Status
		st.StartedAt = parseDockerTime(info.State.StartedAt)
		st.FinishedAt = parseDockerTime(info.State.FinishedAt)
		st.ExitCode = int64(info.State.ExitCode)
	}
	return st, nil
}

func (e *dockerEngine) StartContainer(ctx context.Context, containerID string) error {
	return e.cli.ContainerStart(ctx, containerID, types.ContainerStartOptions{})
}

func (e *dockerEngine) StopContainer(ctx context.Context, containerID string) error {
	return e.cli.ContainerStop(ctx, containerID, container.StopOptions{})
}

func (e *dockerEngine) DeleteContainer(ctx context.Context, containerID string) error {
	return e.cli.ContainerRemove(ctx, containerID, types.ContainerRemoveOptions{Force: true})
}

func (e *dockerEngine) ContainerLogs(ctx context.Context, containerID string, tail int, follow bool, since string) ([]string, error) {
	if follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, followWindow)
		defer cancel()
	}
	rc, err := e.cli.ContainerLogs(ctx, containerID, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
		Follow:     follow,
		Since:      since,
	})
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	// The daemon multiplexes stdout/stderr for non-tty containers;
	// demux into a single line stream.
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, rc)
		pw.CloseWithError(err)
	}()

	var lines []string
	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if follow && len(lines) >= maxFollowLines {
			break
		}
	}
	return lines, nil
}

// WatchContainers subscribes to the daemon's event stream and signals
// on container lifecycle transitions.
func (e *dockerEngine) WatchContainers(ctx context.Context) (<-chan struct{}, error) {
	args := filters.NewArgs()
	args.Add("type", "container")
	msgs, errs := e.cli.Events(ctx, types.EventsOptions{Filters: args})

	signal := make(chan struct{}, 1)
	go func() {
		defer close(signal)
		for {
			select {
			case msg := <-msgs:
				switch msg.Action {
				case "create", "start", "stop", "die", "destroy":
					select {
					case signal <- struct{}{}:
					default:
					}
				}
			case <-errs:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return signal, nil
}

func (e *dockerEngine) Close() error {
	return e.cli.Close()
}

// containerName returns the container's primary name without the
// leading slash the daemon prepends, falling back to the short id.
func containerName(c types.Container) string {
	if len(c.Names) > 0 {
		return strings.TrimPrefix(c.Names[0], "/")
	}
	if len(c.ID) >= 12 {
		return c.ID[:12]
	}
	return c.ID
}

// parseDockerTime converts the daemon's RFC3339 timestamps to unix
// seconds. The daemon's zero value ("0001-01-01...") maps to 0.
func parseDockerTime(value string) int64 {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil || ts.Unix() < 0 {
		return 0
	}
	return ts.Unix()
}

package collector

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"neurodash-agent/models"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

const (
	dockerSocketPath = "/var/run/docker.sock"

	// MaxContainers bounds the container list carried in every sample.
	MaxContainers = 20
)

// ContainerSource lists running containers.
type ContainerSource interface {
	Containers(ctx context.Context) ([]models.ContainerInfo, error)
	Close() error
}

type dockerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	Close() error
}

type dockerSource struct {
	api   dockerAPI
	limit int
}

// newDockerSource connects to the local daemon and pings it once. No
// socket or no answer is ErrProbeUnavailable.
func newDockerSource(ctx context.Context) (*dockerSource, error) {
	if !fileExists(dockerSocketPath) && os.Getenv("DOCKER_HOST") == "" {
		return nil, fmt.Errorf("docker: no socket at %s: %w", dockerSocketPath, ErrProbeUnavailable)
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker connect: %v: %w", err, ErrProbeUnavailable)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker ping: %v: %w", err, ErrProbeUnavailable)
	}

	return &dockerSource{api: cli, limit: MaxContainers}, nil
}

// Containers returns running containers sorted by name, at most limit.
func (d *dockerSource) Containers(ctx context.Context) ([]models.ContainerInfo, error) {
	list, err := d.api.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("container list: %w", err)
	}

	result := make([]models.ContainerInfo, 0, len(list))
	for _, c := range list {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		id := c.ID
		if len(id) > 12 {
			id = id[:12] // Short ID
		}
		result = append(result, models.ContainerInfo{
			ID:     id,
			Name:   name,
			Image:  c.Image,
			State:  c.State,
			Status: c.Status,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	if d.limit > 0 && len(result) > d.limit {
		result = result[:d.limit]
	}
	return result, nil
}

func (d *dockerSource) Close() error {
	return d.api.Close()
}

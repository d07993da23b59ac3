package collector

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDockerAPI struct {
	list   []container.Summary
	err    error
	closed bool
}

func (f *fakeDockerAPI) ContainerList(context.Context, container.ListOptions) ([]container.Summary, error) {
	return f.list, f.err
}

func (f *fakeDockerAPI) Close() error {
	f.closed = true
	return nil
}

func TestDockerSourceContainers(t *testing.T) {
	api := &fakeDockerAPI{list: []container.Summary{
		{ID: "0123456789abcdef0123", Names: []string{"/web"}, Image: "nginx:1.27", State: "running", Status: "Up 2 hours"},
		{ID: "fedcba9876543210", Names: []string{"/db"}, Image: "postgres:16", State: "running", Status: "Up 3 hours"},
		{ID: "short", Image: "busybox"},
	}}
	src := &dockerSource{api: api, limit: MaxContainers}

	got, err := src.Containers(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "", got[0].Name)
	assert.Equal(t, "short", got[0].ID)
	assert.Equal(t, "db", got[1].Name)
	assert.Equal(t, "fedcba987654", got[1].ID)
	assert.Equal(t, "web", got[2].Name)
	assert.Equal(t, "0123456789ab", got[2].ID)
	assert.Equal(t, "Up 2 hours", got[2].Status)
}

func TestDockerSourceLimit(t *testing.T) {
	api := &fakeDockerAPI{}
	for i := 0; i < MaxContainers+5; i++ {
		api.list = append(api.list, container.Summary{ID: fmt.Sprintf("id%02d", i), Names: []string{fmt.Sprintf("/c%02d", i)}})
	}
	src := &dockerSource{api: api, limit: MaxContainers}

	got, err := src.Containers(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, MaxContainers)
	assert.Equal(t, "c00", got[0].Name)
}

func TestDockerSourceError(t *testing.T) {
	api := &fakeDockerAPI{err: errors.New("daemon gone")}
	src := &dockerSource{api: api, limit: MaxContainers}

	_, err := src.Containers(context.Background())
	assert.ErrorContains(t, err, "daemon gone")

	require.NoError(t, src.Close())
	assert.True(t, api.closed)
}

package repotest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startContainer runs req for the lifetime of t. It skips t in -short mode or
// when Docker is not reachable.
func startContainer(t *testing.T, name string, req testcontainers.ContainerRequest) testcontainers.Container {
	t.Helper()
	if testing.Short() {
		t.Skipf("Skipping %s integration test in short mode", name)
	}

	container, err := testcontainers.GenericContainer(context.Background(), testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Skipping %s integration test, container unavailable: %v", name, err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})
	return container
}

// StartRedis runs a Redis container and returns its address.
func StartRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container := startContainer(t, "Redis", testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(30 * time.Second),
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, port.Port())
}

// StartNeo4j runs an unauthenticated Neo4j container and returns its bolt URI.
func StartNeo4j(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container := startContainer(t, "Neo4j", testcontainers.ContainerRequest{
		Image:        "neo4j:5",
		ExposedPorts: []string{"7687/tcp"},
		Env:          map[string]string{"NEO4J_AUTH": "none"},
		WaitingFor: wait.ForLog("Started.").
			WithStartupTimeout(120 * time.Second),
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "7687/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("bolt://%s:%s", host, port.Port())
}

// Package common holds test infrastructure shared by the storage integration tests.
package common

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	defaultSurrealImage = "surrealdb/surrealdb:v3.0.0"
	surrealPort         = "8000/tcp"
	surrealUser         = "root"
	surrealPass         = "root"
)

// SurrealDB is a running SurrealDB container shared by every test in the process.
type SurrealDB struct {
	container testcontainers.Container
	addr      string
}

var shared struct {
	once sync.Once
	db   *SurrealDB
	err  error
}

// StartSurrealDB returns the shared container, starting it on first use.
// Tests are skipped unless ROLLUP_TEST_DOCKER=true; ROLLUP_TEST_SURREALDB_IMAGE
// overrides the image.
func StartSurrealDB(t *testing.T) *SurrealDB {
	t.Helper()

	if os.Getenv("ROLLUP_TEST_DOCKER") != "true" {
		t.Skip("SurrealDB integration tests disabled (set ROLLUP_TEST_DOCKER=true)")
	}

	shared.once.Do(func() {
		image := os.Getenv("ROLLUP_TEST_SURREALDB_IMAGE")
		if image == "" {
			image = defaultSurrealImage
		}
		shared.db, shared.err = startSurrealDB(context.Background(), image)
	})
	if shared.err != nil {
		t.Fatalf("SurrealDB container: %v", shared.err)
	}
	return shared.db
}

func startSurrealDB(ctx context.Context, image string) (*SurrealDB, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{surrealPort},
			Cmd:          []string{"start", "--user", surrealUser, "--pass", surrealPass},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort(surrealPort),
				wait.ForLog("Started web server"),
			).WithDeadline(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", image, err)
	}

	endpoint, err := container.PortEndpoint(ctx, surrealPort, "ws")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("resolve endpoint: %w", err)
	}
	return &SurrealDB{container: container, addr: endpoint + "/rpc"}, nil
}

// Address returns the WebSocket RPC address of the container.
func (s *SurrealDB) Address() string {
	return s.addr
}

// Credentials returns the root user the container was started with.
func (s *SurrealDB) Credentials() map[string]interface{} {
	return map[string]interface{}{"user": surrealUser, "pass": surrealPass}
}

// Terminate stops the container; call it from TestMain when the run ends.
func (s *SurrealDB) Terminate() {
	if s != nil && s.container != nil {
		s.container.Terminate(context.Background())
	}
}

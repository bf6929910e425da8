package libbus

import (
	"context"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcnats "github.com/testcontainers/testcontainers-go/modules/nats"
)

// SetupNatsInstance starts a disposable NATS container for tests and local
// development. The returned cleanup stops the container.
func SetupNatsInstance(ctx context.Context) (string, testcontainers.Container, func(), error) {
	cleanup := func() {}

	container, err := tcnats.Run(ctx, "nats:2.10")
	if err != nil {
		return "", nil, cleanup, err
	}
	cleanup = func() {
		timeout := time.Second
		_ = container.Stop(context.Background(), &timeout)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		return "", nil, cleanup, err
	}
	return url, container, cleanup, nil
}

// NewTestPubSub spins up a container-backed Messenger. Callers must invoke
// the returned cleanup even on error.
func NewTestPubSub() (Messenger, func(), error) {
	ctx := context.Background()
	url, _, cleanup, err := SetupNatsInstance(ctx)
	if err != nil {
		return nil, cleanup, err
	}
	ps, err := NewPubSub(ctx, &Config{NATSURL: url})
	if err != nil {
		return nil, cleanup, err
	}
	full := func() {
		_ = ps.Close()
		cleanup()
	}
	return ps, full, nil
}

// engine.go — wiring from CLI settings to the SDK client and the sync engine.
package tourcli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tourdesk/tourdesk/chatsdk"
	"github.com/tourdesk/tourdesk/chatsync"
	libbus "github.com/tourdesk/tourdesk/libbus"
	"github.com/tourdesk/tourdesk/libtracker"
)

const (
	connectInterval = 2 * time.Second
	connectTimeout  = 15 * time.Second
)

// newSDK builds the REST client from the effective settings.
func newSDK(s settings) (*chatsdk.HTTPChatService, error) {
	if s.Token == "" {
		return nil, fmt.Errorf("no token: run `tourchat login <identity>` first")
	}
	return chatsdk.NewHTTPChatService(s.Server, s.Token, nil), nil
}

// startEngine dials NATS under supervision and returns a connected sync
// engine. The cleanup function stops the engine and its connection loop.
func startEngine(ctx context.Context, s settings, sdk *chatsdk.HTTPChatService, handlers chatsync.Handlers) (*chatsync.Engine, func(), error) {
	if s.Identity == "" {
		return nil, nil, fmt.Errorf("no identity: run `tourchat login <identity>` first")
	}

	var tracker libtracker.ActivityTracker
	if s.Tracing {
		tracker = libtracker.NewLogActivityTracker(slog.Default())
	} else {
		tracker = libtracker.NoopTracker{}
	}

	engine, err := chatsync.New(chatsync.Config{
		UserID: s.Identity,
		Connect: func(ctx context.Context) (libbus.Messenger, error) {
			return libbus.NewPubSub(ctx, &libbus.Config{
				NATSURL:      s.NATSURL,
				NATSUser:     s.NATSUser,
				NATSPassword: s.NATSPassword,
			})
		},
		History:        sdk.HistoryFunc(),
		Upload:         sdk.UploadFunc(),
		Handlers:       handlers,
		PendingTimeout: s.PendingTimeout,
		Tracker:        tracker,
	})
	if err != nil {
		return nil, nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	go engine.Run(runCtx, connectInterval)

	waitCtx, waitCancel := context.WithTimeout(ctx, connectTimeout)
	defer waitCancel()
	if err := engine.WaitConnected(waitCtx); err != nil {
		cancel()
		_ = engine.Close()
		return nil, nil, fmt.Errorf("could not reach NATS at %s: %w", s.NATSURL, err)
	}

	cleanup := func() {
		cancel()
		if err := engine.Close(); err != nil {
			slog.Error("Error closing engine", "error", err)
		}
	}
	return engine, cleanup, nil
}

package serverapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tourdesk/tourdesk/apiframework"
	"github.com/tourdesk/tourdesk/chatrelay"
	"github.com/tourdesk/tourdesk/chatservice"
	"github.com/tourdesk/tourdesk/internal/chatapi"
	libbus "github.com/tourdesk/tourdesk/libbus"
	libdb "github.com/tourdesk/tourdesk/libdbexec"
	libkv "github.com/tourdesk/tourdesk/libkvstore"
	"github.com/tourdesk/tourdesk/libroutine"
	"github.com/tourdesk/tourdesk/libtracker"
)

func New(
	ctx context.Context,
	mux *http.ServeMux,
	nodeInstanceID string,
	tenancy string,
	config *Config,
	dbInstance libdb.DBManager,
	pubsub libbus.Messenger,
	kvManager libkv.KVManager,
) (func() error, error) {
	cleanup := func() error { return nil }
	stdOuttracker := libtracker.NewLogActivityTracker(slog.Default())
	serveropsChainedTracker := libtracker.ChainedTracker{
		stdOuttracker,
	}
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		apiframework.Error(w, r, apiframework.ErrNotFound, apiframework.ListOperation)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		// OK
	})
	version := apiframework.GetVersion()
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		apiframework.Encode(w, r, http.StatusOK, apiframework.AboutServer{Version: version, NodeInstanceID: nodeInstanceID, Tenancy: tenancy})
	})

	chatService := chatservice.New(dbInstance, kvManager)
	chatService = chatservice.WithActivityTracker(chatService, serveropsChainedTracker)
	relay := chatrelay.New(chatService, pubsub, serveropsChainedTracker)
	chatapi.AddChatRoutes(mux, chatService, relay)
	chatapi.AddFileRoutes(mux, chatService)

	// Get circuit breaker group instance
	group := libroutine.GetGroup()

	// The relay blocks inside Serve until the context ends or the bus
	// fails; the loop restarts it after transient failures.
	group.StartLoop(
		ctx,
		&libroutine.LoopConfig{
			Key:          "chatRelay",
			Threshold:    3,
			ResetTimeout: 10 * time.Second,
			Interval:     time.Second,
			Operation:    relay.Serve,
		},
	)

	// Keeps recently active conversation previews warm in the KV cache.
	group.StartLoop(
		ctx,
		&libroutine.LoopConfig{
			Key:          "previewWarmCycle",
			Threshold:    3,
			ResetTimeout: 10 * time.Second,
			Interval:     time.Minute,
			Operation: func(ctx context.Context) error {
				_, err := chatService.ListConversations(ctx, nil, 100)
				return err
			},
		},
	)

	triggerCh := make(chan []byte, 10)
	err := pubsub.Publish(ctx, "trigger_cycle", []byte("trigger"))
	if err != nil {
		log.Fatalf("failed to publish trigger_cycle message: %v", err)
	}
	sub, err := pubsub.Stream(ctx, "trigger_cycle", triggerCh)
	if err != nil {
		log.Fatalf("failed to subscribe to trigger_cycle topic: %v", err)
	}
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-triggerCh:
				if !ok {
					return
				}
				// Force immediate execution of the warm cycle
				group.ForceUpdate("previewWarmCycle")
			}
		}
	}()

	return cleanup, nil
}

type Config struct {
	DatabaseURL  string `json:"database_url"`
	Port         string `json:"port"`
	Addr         string `json:"addr"`
	NATSURL      string `json:"nats_url"`
	NATSUser     string `json:"nats_user"`
	NATSPassword string `json:"nats_password"`
	KVAddr       string `json:"kv_addr"`
	KVPassword   string `json:"kv_password"`
	JWTSecret    string `json:"jwt_secret"`
	JWTExpiry    string `json:"jwt_expiry"`
	UIBaseURL    string `json:"ui_base_url"`
}

func LoadConfig[T any](cfg *T) error {
	if cfg == nil {
		return fmt.Errorf("config pointer is nil")
	}
	config := map[string]string{}
	for _, kvPair := range os.Environ() {
		ar := strings.SplitN(kvPair, "=", 2)
		if len(ar) < 2 {
			continue
		}
		key := strings.ToLower(ar[0])
		value := ar[1]
		config[key] = value
	}

	b, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal env vars: %w", err)
	}
	err = json.Unmarshal(b, cfg)
	if err != nil {
		return fmt.Errorf("failed to unmarshal into config struct: %w", err)
	}

	return nil
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tourdesk/tourdesk/apiframework"
	"github.com/tourdesk/tourdesk/chatstore"
	libbus "github.com/tourdesk/tourdesk/libbus"
	libdb "github.com/tourdesk/tourdesk/libdbexec"
	libkv "github.com/tourdesk/tourdesk/libkvstore"
	libroutine "github.com/tourdesk/tourdesk/libroutine"
	"github.com/tourdesk/tourdesk/serverapi"
)

var (
	cliSetTenancy  string
	Tenancy        = "96ed1c59-ffc1-4545-b3c3-191079c68d79"
	nodeInstanceID = "NODE-Instance-UNSET-dev"
)

func initDatabase(ctx context.Context, cfg *serverapi.Config) (libdb.DBManager, error) {
	dbURL := cfg.DatabaseURL
	var err error
	if dbURL == "" {
		err = fmt.Errorf("DATABASE_URL is required")
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	var dbInstance libdb.DBManager
	err = libroutine.NewRoutine(10, time.Minute).ExecuteWithRetry(ctx, time.Second, 3, func(ctx context.Context) error {
		dbInstance, err = libdb.NewSQLiteDBManager(ctx, dbURL, chatstore.Schema)
		if err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	return dbInstance, nil
}

func initPubSub(ctx context.Context, cfg *serverapi.Config) (libbus.Messenger, error) {
	ps, err := libbus.NewPubSub(ctx, &libbus.Config{
		NATSURL:      cfg.NATSURL,
		NATSPassword: cfg.NATSPassword,
		NATSUser:     cfg.NATSUser,
	})
	if err != nil {
		return nil, err
	}
	return ps, nil
}

func main() {
	nodeInstanceID = uuid.NewString()[0:8]
	if cliSetTenancy != "" {
		Tenancy = cliSetTenancy
	}
	config := &serverapi.Config{}
	if err := serverapi.LoadConfig(config); err != nil {
		log.Fatalf("%s: failed to load configuration: %v", nodeInstanceID, err)
	}
	if config.JWTSecret == "" {
		log.Fatalf("%s: JWT_SECRET is required", nodeInstanceID)
	}
	ctx := context.TODO()
	cleanups := []func() error{func() error {
		fmt.Printf("%s cleaning up", nodeInstanceID)
		return nil
	}}
	defer func() {
		for _, cleanup := range cleanups {
			err := cleanup()
			if err != nil {
				log.Printf("%s cleanup failed: %v", nodeInstanceID, err)
			}
		}
	}()
	fmt.Print("initialize the database")
	dbInstance, err := initDatabase(ctx, config)
	if err != nil {
		log.Fatalf("%s initializing database failed: %v", nodeInstanceID, err)
	}
	defer dbInstance.Close()

	ps, err := initPubSub(ctx, config)
	if err != nil {
		log.Fatalf("%s initializing PubSub failed: %v", nodeInstanceID, err)
	}

	var kvManager libkv.KVManager
	if config.KVAddr != "" {
		kvManager, err = libkv.NewManager(libkv.Config{
			KVAddr:     config.KVAddr,
			KVPassword: config.KVPassword,
		}, 5*time.Second)
		if err != nil {
			log.Fatalf("%s initializing KV store failed: %v", nodeInstanceID, err)
		}
		defer kvManager.Close()
	}

	internalMux := http.NewServeMux()
	var apiHandler http.Handler = internalMux
	cleanup, err := serverapi.New(ctx, internalMux, nodeInstanceID, Tenancy, config, dbInstance, ps, kvManager)
	cleanups = append(cleanups, cleanup)
	if err != nil {
		log.Fatalf("%s initializing API handler failed: %v", nodeInstanceID, err)
	}
	apiHandler = apiframework.AuthMiddleware(config.JWTSecret, apiHandler)
	apiHandler = apiframework.RequestIDMiddleware(apiHandler)
	apiHandler = apiframework.TracingMiddleware(apiHandler)

	mux := http.NewServeMux()
	mux.Handle("/", apiHandler)
	port := config.Port
	if port == "" {
		port = "8080"
	}
	log.Printf("%s %s starting server on :%s", Tenancy, nodeInstanceID, port)
	if err := http.ListenAndServe(config.Addr+":"+port, mux); err != nil {
		log.Fatalf("%s server failed: %v", nodeInstanceID, err)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"finchat/api"
	"finchat/controller"
	"finchat/platform"
	"finchat/service"
	"finchat/store"
)

func main() {
	fmt.Println("Server started...")

	cfg, err := platform.LoadConfig(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %s\n", err)
		os.Exit(1)
	}

	logger := platform.InitLogger(cfg.LogPath, "finchat")
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	// storage
	var (
		st      store.Store
		storage store.LocalStorage
	)
	switch cfg.Storage {
	case platform.StorageMemory:
		st = store.NewMemory()
		storage = store.NewMemoryLocalStorage()
	default:
		db, err := platform.OpenDB(cfg)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		if st, err = store.NewSQL(db); err != nil {
			logger.Fatalf("Failed to initialize database: %v", err)
		}
		if storage, err = store.NewSQLLocalStorage(db); err != nil {
			logger.Fatalf("Failed to initialize local storage: %v", err)
		}
	}
	logger.Infof("storage backend %s", cfg.Storage)

	hub := service.NewHub()

	// transport
	var transport service.Transport
	switch cfg.Transport {
	case platform.TransportLLM:
		transport = api.NewLLMChat(platform.NewLLMClient(cfg), cfg.LLMModel, st.ListMessages)
	default:
		client, err := api.NewClient(api.Config{
			BaseURL:         cfg.APIURL,
			Timeout:         cfg.APITimeout,
			RequestInterval: cfg.RequestInterval,
			Production:      cfg.Production(),
		}, storage, logger)
		if err != nil {
			logger.Fatalf("Failed to create api client: %v", err)
		}
		client.OnUnauthorized(func() {
			hub.Publish(service.Event{Name: service.EventAuthRequired})
		})
		transport = api.NewChatAPI(client, api.DefaultClientInfo("finchat/1.0"))
	}
	logger.Infof("transport %s", cfg.Transport)

	notifier := service.NewNotifier(hub, nil)
	chat := service.NewChatService(st, transport, hub, notifier, logger, service.ChatOptions{
		SendInterval: cfg.SendInterval,
		Timeout:      cfg.APITimeout,
	})
	auth := service.NewAuthService(storage, hub, logger)

	housekeeper := service.NewHousekeeper(chat, cfg.HousekeepingCron, cfg.ConversationTTL, logger)
	if err := housekeeper.Start(); err != nil {
		logger.Fatalf("Failed to schedule housekeeping: %v", err)
	}

	r := controller.NewRouter(
		controller.NewAuthController(auth, logger),
		controller.NewChatController(chat, logger),
		controller.NewEventsController(hub, cfg.CORSOrigin, logger),
		controller.RouterOptions{CORSOrigin: cfg.CORSOrigin, Logger: logger},
	)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server stopped: %v", err)
		}
	}()
	logger.WithFields(logrus.Fields{"port": cfg.Port, "env": cfg.AppEnv}).Info("listening")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("server shutdown: %s", err)
	}
	<-housekeeper.Stop().Done()
}

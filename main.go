package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/polartar/vtvl-smartcontracts/handlers"
	"github.com/polartar/vtvl-smartcontracts/service"
	"github.com/polartar/vtvl-smartcontracts/vesting"
	"github.com/sirupsen/logrus"
)

func main() {
	config := LoadConfig()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(config.LogLevel)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	storage, err := service.NewStorage(config.DBPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize storage")
	}
	defer storage.Close()

	svc := service.NewService(storage, config.FactoryAddress, vesting.SystemClock{}, logger)
	h := handlers.NewHandler(svc, logger)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	h.Register(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: router,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":    config.Port,
			"db":      config.DBPath,
			"factory": config.FactoryAddress.Hex(),
		}).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Forced shutdown")
		return
	}

	logger.Info("Bye")
}

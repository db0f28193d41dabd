package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ShadowAlejo/parqueadero/config"
	"github.com/ShadowAlejo/parqueadero/database"
	reservationRepo "github.com/ShadowAlejo/parqueadero/database/repository/reservation"
	runsRepo "github.com/ShadowAlejo/parqueadero/database/repository/runs"
	"github.com/ShadowAlejo/parqueadero/services/reconcile"
	"github.com/ShadowAlejo/parqueadero/utils"

	"go.uber.org/zap"
)

// storeBackend is a reconcile store that can report reachability.
type storeBackend interface {
	reconcile.Store
	Ping(ctx context.Context) error
}

// app holds the process-wide dependencies shared by every command.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	settings reconcile.Settings
	store    storeBackend
	runs     runsRepo.RunRepository
	service  *reconcile.Service
	health   map[string]utils.Pinger
	closers  []func()
}

// bootstrap loads configuration and connects the store and the report cache.
// A report cache that cannot be reached only disables run history.
func bootstrap(ctx context.Context) (*app, error) {
	config.LoadConfig()
	utils.InitializeLogger()
	logger := utils.GetLogger()
	zap.ReplaceGlobals(logger)

	a := &app{cfg: config.AppConfig, logger: logger, health: map[string]utils.Pinger{}}

	settings, err := a.cfg.ReconcileSettings()
	if err != nil {
		return nil, err
	}
	a.settings = settings

	names := a.cfg.StoreNames()
	switch a.cfg.StoreBackend {
	case "firestore":
		client, err := database.InitFirestore(ctx, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.store = reservationRepo.NewFirestoreStore(client, names)
	case "mongo":
		client, err := database.InitDB(logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(dctx)
		})
		a.store = reservationRepo.NewMongoStore(client, a.cfg.DatabaseName, names)
	default:
		a.close()
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", a.cfg.StoreBackend)
	}
	a.health[a.cfg.StoreBackend] = a.store

	var recorder reconcile.RunRecorder
	if err := utils.InitReportCache(); err != nil {
		logger.Warn("run reports disabled", zap.Error(err))
	} else {
		client := utils.GetReportClient()
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.runs = runsRepo.NewRedisRunRepo(client, "parqueadero:", a.cfg.ReportTTL)
		recorder = a.runs
		a.health["redis"] = utils.PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
	}

	a.service, err = reconcile.NewService(a.store, settings, logger.Named("reconcile"), recorder)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

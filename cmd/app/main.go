package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	inhttp "github.com/suchimauz/clinic-workflow-engine/internal/adapters/in/http"
	"github.com/suchimauz/clinic-workflow-engine/internal/adapters/in/rabbitmq"
	"github.com/suchimauz/clinic-workflow-engine/internal/adapters/out/cache"
	"github.com/suchimauz/clinic-workflow-engine/internal/adapters/out/clinicapi"
	"github.com/suchimauz/clinic-workflow-engine/internal/adapters/out/logger"
	"github.com/suchimauz/clinic-workflow-engine/internal/adapters/out/memstore"
	"github.com/suchimauz/clinic-workflow-engine/internal/config"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/ports/out"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/services"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера с таймзоной, debug-уровень только локально
	minLevel := out.LogLevelInfo
	if cfg.IsLocal() {
		minLevel = out.LogLevelDebug
	}
	mainLogger, err := logger.NewConsoleLogger(cfg.App.Timezone, minLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log := mainLogger.WithModule("Main")

	log.Info("app.starting", out.LogFields{
		"version":         cfg.App.Version,
		"env":             cfg.App.Env,
		"timezone":        cfg.App.Timezone,
		"storeMode":       cfg.Store.Mode,
		"rabbitmqEnabled": cfg.RabbitMQ.Enabled,
		"cacheEnabled":    cfg.Cache.Enabled,
		"sweeperEnabled":  cfg.Sweeper.Enabled,
	})

	// Настройка Gin в зависимости от окружения
	if cfg.IsNotLocal() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Выбор хранилища: собственное in-memory или REST-бэкенд клиники
	var (
		appointmentStore out.AppointmentStorePort
		recordStore      out.RecordStorePort
		inventory        out.InventoryPort
		feeCatalog       out.FeeCatalogPort
	)
	switch cfg.Store.Mode {
	case config.StoreModeAPI:
		adapter := clinicapi.NewClinicAPIAdapter(cfg, mainLogger.WithModule("ClinicAPIAdapter"))
		appointmentStore = adapter
		recordStore = adapter
		inventory = adapter
		feeCatalog = adapter
	default:
		store := memstore.NewMemStore(mainLogger)
		appointmentStore = store
		recordStore = store
		inventory = store
		feeCatalog = store
	}

	var cacheAdapter out.CachePort
	if cfg.Cache.Enabled {
		adapter, err := cache.NewCacheAdapter(cfg, mainLogger)
		if err != nil {
			log.Error("app.cache.init_failed", out.LogFields{
				"error": err.Error(),
			})
			os.Exit(1)
		}
		cacheAdapter = adapter
	}

	// Инициализация сервисов ядра
	appointmentService := services.NewAppointmentService(
		appointmentStore,
		recordStore,
		feeCatalog,
		cacheAdapter,
		cfg,
		mainLogger,
	)
	recordService := services.NewRecordService(
		appointmentStore,
		recordStore,
		inventory,
		cacheAdapter,
		cfg,
		mainLogger,
	)
	revenueService := services.NewRevenueService(
		appointmentStore,
		recordStore,
		inventory,
		feeCatalog,
		cfg,
		mainLogger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Фоновая авто-отмена опоздавших записей
	sweeper := services.NewSweeper(appointmentService, cfg, mainLogger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// Настройка HTTP сервера
	router := gin.Default()
	controller := inhttp.NewWorkflowController(
		appointmentService,
		recordService,
		revenueService,
		inventory,
		cfg,
	)
	controller.RegisterRoutes(router)

	// Настройка RabbitMQ слушателя только если он включен
	if cfg.RabbitMQ.Enabled {
		listener, err := rabbitmq.NewAppointmentEventListener(
			appointmentService,
			cacheAdapter,
			cfg,
			mainLogger,
		)
		if err != nil {
			log.Error("app.rabbitmq.init_failed", out.LogFields{
				"error": err.Error(),
			})
			os.Exit(1)
		}

		if err := listener.Start(ctx); err != nil {
			log.Error("app.rabbitmq.start_failed", out.LogFields{
				"error": err.Error(),
			})
			os.Exit(1)
		}

		defer func() {
			if err := listener.Stop(); err != nil {
				log.Error("app.rabbitmq.stop_failed", out.LogFields{
					"error": err.Error(),
				})
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("app.http.starting", out.LogFields{
			"host": cfg.HTTP.Host,
			"port": cfg.HTTP.Port,
		})

		if err := router.Run(cfg.HTTP.Host + ":" + cfg.HTTP.Port); err != nil {
			log.Error("app.http.failed", out.LogFields{
				"error": err.Error(),
			})
			sigChan <- syscall.SIGTERM
		}
	}()

	sig := <-sigChan
	log.Info("app.shutdown.initiated", out.LogFields{
		"signal": sig.String(),
	})
}

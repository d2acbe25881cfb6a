package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/afero"

	appbilling "github.com/witalo/inova/internal/application/billing"
	"github.com/witalo/inova/internal/infrastructure/jobs"
	"github.com/witalo/inova/internal/infrastructure/postgres"
	"github.com/witalo/inova/internal/infrastructure/storage"
	infrasunat "github.com/witalo/inova/internal/infrastructure/sunat"
	"github.com/witalo/inova/internal/infrastructure/sunat/signer"
	httpRouter "github.com/witalo/inova/internal/interfaces/http"
	"github.com/witalo/inova/pkg/config"
	"github.com/witalo/inova/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	operationRepo := postgres.NewOperationRepository(pool)
	companyRepo := postgres.NewCompanyRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)

	fileStore := storage.NewFileStore(afero.NewOsFs(), cfg.Storage.BasePath)
	xmlBuilder := infrasunat.NewXMLBuilderService()
	voidedBuilder := infrasunat.NewVoidedBuilderService()
	signerSvc := signer.NewDigitalSignatureService()
	soapClient := infrasunat.NewSOAPClient(cfg.SUNAT)
	soapClient.SetRecorder(infrasunat.NewFileRecorder(fileStore, log))

	orchestrator := appbilling.NewOrchestrator(
		operationRepo, companyRepo, paymentRepo,
		xmlBuilder, voidedBuilder, signerSvc, soapClient,
		fileStore, cfg.Billing, log,
	)

	runner := jobs.NewRunner(orchestrator, cfg.Billing, log)
	runner.Start(ctx)
	defer runner.Stop()

	// Barrido en segundo plano: reintentos y tickets pendientes.
	sweeper := appbilling.NewSweeper(operationRepo, runner, cfg.Billing, log)
	go sweeper.Loop(ctx, cfg.Billing.SweepInterval)

	app := fiber.New(fiber.Config{
		AppName:     cfg.App.Name,
		ReadTimeout: time.Second * 10,
		// La anulación consulta el ticket SUNAT en línea, con esperas entre
		// intentos; el timeout de escritura debe cubrir ese ciclo completo.
		WriteTimeout: time.Minute * 2,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Orchestrator: orchestrator,
		Jobs:         runner,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}

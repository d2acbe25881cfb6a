// El demonio de facturación corre el barrido de reintentos sin servidor
// HTTP: útil como proceso aparte cuando la API corre detrás de un balanceador
// y solo una instancia debe barrer.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	appbilling "github.com/witalo/inova/internal/application/billing"
	"github.com/witalo/inova/internal/infrastructure/jobs"
	"github.com/witalo/inova/internal/infrastructure/postgres"
	"github.com/witalo/inova/internal/infrastructure/storage"
	infrasunat "github.com/witalo/inova/internal/infrastructure/sunat"
	"github.com/witalo/inova/internal/infrastructure/sunat/signer"
	"github.com/witalo/inova/pkg/config"
	"github.com/witalo/inova/pkg/logger"
)

func main() {
	interval := flag.Duration("interval", 0, "intervalo entre pasadas (0 usa BILLING_SWEEP_INTERVAL)")
	once := flag.Bool("once", false, "ejecuta una sola pasada y termina")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().Bool("once", *once).Msg("iniciando demonio de facturación")

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
	soapClient := infrasunat.NewSOAPClient(cfg.SUNAT)
	soapClient.SetRecorder(infrasunat.NewFileRecorder(fileStore, log))
	orchestrator := appbilling.NewOrchestrator(
		operationRepo, companyRepo, paymentRepo,
		infrasunat.NewXMLBuilderService(), infrasunat.NewVoidedBuilderService(),
		signer.NewDigitalSignatureService(), soapClient,
		fileStore, cfg.Billing, log,
	)

	runner := jobs.NewRunner(orchestrator, cfg.Billing, log)
	runner.Start(ctx)

	sweeper := appbilling.NewSweeper(operationRepo, runner, cfg.Billing, log)

	if *once {
		if err := sweeper.Run(ctx); err != nil {
			log.Error().Err(err).Msg("pasada del barredor fallida")
			runner.Stop()
			os.Exit(1)
		}
		// Dejar que los workers terminen lo encolado antes de salir.
		time.Sleep(time.Second)
		runner.Stop()
		log.Info().Msg("pasada única completada")
		return
	}

	sweeper.Loop(ctx, *interval)
	runner.Stop()
	log.Info().Msg("demonio detenido")
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avika/achexport/internal/auth"
	"github.com/avika/achexport/internal/config"
	database "github.com/avika/achexport/internal/db"
	"github.com/avika/achexport/internal/fieldcipher"
	"github.com/avika/achexport/internal/logger"
	"github.com/avika/achexport/internal/payment/application"
	"github.com/avika/achexport/internal/payment/infrastructure"
	"github.com/avika/achexport/internal/payment/interfaces"
	"go.uber.org/zap"
)

func main() {
	operatorToken := flag.String("operator-token", "", "print a signed operator token for the given actor and exit")
	totpSetup := flag.String("operator-totp-setup", "", "print a new operator TOTP secret for the given account and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Could not load configuration: %v", err)
	}

	if *totpSetup != "" {
		uri, secret, err := auth.GenerateSecret(*totpSetup)
		if err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Printf("OPERATOR_TOTP_SECRET=%s\n%s\n", secret, uri)
		return
	}
	if *operatorToken != "" {
		jwtManager, err := auth.NewJWTManager(cfg.JWTSecret)
		if err != nil {
			log.Fatalf("%v", err)
		}
		token, err := jwtManager.GenerateAccessJWT(*operatorToken, auth.DefaultOperatorTokenDuration)
		if err != nil {
			log.Fatalf("Could not sign operator token: %v", err)
		}
		fmt.Println(token)
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Missing configuration, update to start server: %v", err)
	}

	appLogger, err := logger.New(cfg.Env, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Could not initialize logger: %v", err)
	}
	defer appLogger.Sync()

	if err := run(cfg, appLogger); err != nil {
		appLogger.Fatal("Service stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, appLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fieldCipher, err := fieldcipher.NewFromBase64(cfg.EncryptionKeyB64, cfg.EncryptionAlg)
	if err != nil {
		return err
	}

	dbService, err := database.NewDBService(ctx, cfg.DBConnectionURL, appLogger)
	if err != nil {
		return fmt.Errorf("could not initialize database: %w", err)
	}
	defer dbService.Close()

	if err := dbService.Migrate(ctx); err != nil {
		return err
	}

	fileStore, err := infrastructure.NewFileStore(cfg.ExportRoot)
	if err != nil {
		return err
	}

	jwtManager, err := auth.NewJWTManager(cfg.JWTSecret)
	if err != nil {
		return err
	}
	var verifier *auth.TOTPVerifier
	if cfg.OperatorTOTP != "" {
		verifier = auth.NewTOTPVerifier(cfg.OperatorTOTP)
	}
	operatorAuth := auth.NewMiddleware(jwtManager, verifier, appLogger)

	trustedProxies, err := interfaces.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}

	authorizationRepo := infrastructure.NewAuthorizationRepository(dbService.DB, appLogger)
	linkRepo := infrastructure.NewLinkRepository(dbService.DB)

	authorizationService := application.NewAuthorizationService(authorizationRepo, fieldCipher, appLogger)
	batchBuilder := application.NewBatchBuilder(authorizationRepo, fieldCipher, fileStore, cfg.OriginatorID, cfg.DefaultEntryClass, appLogger)
	linkService := application.NewLinkService(linkRepo, fileStore, cfg.LinkTTLMinutes, appLogger)

	server := NewServer(
		interfaces.NewAuthorizationHandler(authorizationService, trustedProxies, interfaces.RespondJSON, interfaces.RespondError, appLogger),
		interfaces.NewBatchHandler(batchBuilder, linkService, interfaces.RespondJSON, interfaces.RespondError, appLogger),
		interfaces.NewLinkHandler(linkService, interfaces.RespondJSON, interfaces.RespondError, appLogger),
		operatorAuth,
		dbService,
		appLogger,
	)
	server.RegisterRoutes()

	if cfg.BatchSchedule != "" {
		scheduler := application.NewBatchScheduler(batchBuilder, cfg.BatchSchedule, cfg.BatchScheduleRun, appLogger)
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer func() {
			<-scheduler.Stop().Done()
		}()
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info("Server starting", zap.String("addr", cfg.HTTPAddr), zap.String("export_root", fileStore.Root()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

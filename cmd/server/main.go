package main // Entry point package

import (
	"context" // bootstrap deadline for schema setup
	"log"     // Logging library
	"time"

	"github.com/joho/godotenv"    // .env loader for local development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/iliyamo/qr-access-control/internal/access"     // issuance and validation engine
	"github.com/iliyamo/qr-access-control/internal/config"     // Internal config loader
	"github.com/iliyamo/qr-access-control/internal/database"   // MySQL connection and schema
	"github.com/iliyamo/qr-access-control/internal/handler"    // HTTP handlers
	"github.com/iliyamo/qr-access-control/internal/queue"      // RabbitMQ consumer
	"github.com/iliyamo/qr-access-control/internal/repository" // DB repositories
	"github.com/iliyamo/qr-access-control/internal/router"     // Internal router setup
	qp "github.com/iliyamo/qr-access-control/internal/service" // queue publisher / notifier
	"github.com/iliyamo/qr-access-control/internal/sweep"      // periodic expiry sweep
)

func main() {
	_ = godotenv.Load() // Load .env if present; real env vars win

	cfg := config.Load()               // Load environment config
	rl := config.LoadRateLimitConfig() // Scan-endpoint rate limit settings

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	bootCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.EnsureSchema(bootCtx, db); err != nil {
		log.Fatalf("schema: %v", err)
	}

	rdb := config.NewRedisClient() // nil when Redis is unreachable; limiter disables itself

	// Repositories over the shared pool.
	store := repository.NewStore(db)
	audits := repository.NewAuditRepo(db)
	passes := repository.NewPassRepo(db)
	subjects := repository.NewSubjectRepo(db)
	guards := repository.NewGuardRepo(db)
	tokens := repository.NewTokenRepo(db)

	// Decision engine: shared kind set and weekly cutoff.
	kinds := access.NewKindSet(cfg.ExtraKinds)
	cutoff := access.Calculator{Weekday: cfg.CutoffWeekday, Hour: cfg.CutoffHour, Loc: cfg.CutoffLoc}
	issuer := access.NewIssuer(store, kinds, cutoff, cfg.PassTTLMin)
	validator := access.NewValidator(store, audits, qp.Notifier{}, kinds)

	// Background consumer turns access events into notification log lines.
	go func() {
		if err := queue.StartAccessConsumer(); err != nil {
			log.Printf("notifier: consumer stopped: %v", err)
		}
	}()

	// Periodic sweep flips lapsed passes and visits to terminal states.
	sw := sweep.New(db, passes, subjects)
	if err := sw.Start(cfg.SweepSpec); err != nil {
		log.Fatalf("sweep: %v", err)
	}
	defer sw.Stop()

	authH := handler.NewAuthHandler(cfg, guards, tokens)

	e := echo.New()
	router.RegisterRoutes(e) // health check
	router.RegisterAuth(e, authH)
	router.RegisterAccess(e, router.Handlers{
		Auth:  authH,
		Scan:  handler.NewScanHandler(validator),
		Pass:  handler.NewPassHandler(issuer, passes),
		Guest: handler.NewGuestHandler(subjects, issuer),
	}, cfg, rl, rdb)

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err) // Log and exit if server fails
	}
}

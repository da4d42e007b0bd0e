package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"staychain/config"
	"staychain/core/state"
	"staychain/native/booking"
	"staychain/native/marketplace"
	"staychain/native/payment"
	"staychain/native/royalty"
	"staychain/native/system"
	"staychain/native/token"
	"staychain/observability"
	"staychain/observability/logging"
	"staychain/rpc"
	"staychain/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup("stayd", cfg.Environment, cfg.LogFile)

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Error("failed to open state database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	st := state.NewManager(db)
	emitter := observability.NewSlogEmitter(logger)

	admin := cfg.AdminAddress()
	operator := cfg.OperatorAddress()
	authority := cfg.AuthorityAddress()

	for _, role := range [][32]byte{
		system.RoleAdmin,
		marketplace.RoleAdmin,
		booking.RoleAdmin,
		royalty.RoleAdmin,
	} {
		if err := st.GrantRole(role, admin.Bytes()); err != nil {
			logger.Error("failed to grant role", "error", err)
			os.Exit(1)
		}
	}

	pauses := system.NewPauses(st)
	pauses.SetEmitter(emitter)

	tokens := token.NewRegistry(st, authority)
	payments := payment.NewLedger(st, authority)

	bookings := booking.NewLedger(st, authority)
	bookings.SetTokens(tokens)
	bookings.SetPauses(pauses)
	bookings.SetEmitter(emitter)

	royalties := royalty.NewEngine(st)
	royalties.SetBookings(bookings)
	royalties.SetEmitter(emitter)
	if err := royalties.SetTreasury(admin, cfg.TreasuryAddress()); err != nil {
		logger.Error("failed to seed treasury", "error", err)
		os.Exit(1)
	}
	if err := royalties.SetRates(admin, cfg.TreasuryBps, cfg.PropertyBps, cfg.FirstOwnerBps); err != nil {
		logger.Error("failed to seed royalty rates", "error", err)
		os.Exit(1)
	}

	market := marketplace.NewEngine(operator)
	market.SetState(marketplace.NewStore(st))
	market.SetBookingLedger(bookings)
	market.SetTokenRegistry(tokens)
	market.SetPaymentLedger(payments)
	market.SetRoyaltyEngine(royalties)
	market.SetRoles(st)
	market.SetPauses(pauses)
	market.SetEmitter(emitter)

	bookings.SetMarketplace(market)

	server := rpc.NewServer(logger, rpc.ServerConfig{
		AuthToken: cfg.AuthToken,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	}, market, bookings, tokens, payments, royalties, pauses)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("rpc server listening", "address", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("rpc server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

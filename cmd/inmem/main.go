// Package main runs the device trust service on in-memory repositories with
// seeded accounts. All data is lost when the server stops; use cmd/trustd
// with PostgreSQL or SQLite for anything else.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/chi-demo/app"

	"github.com/tendant/device-trust/pkg/activitylog"
	"github.com/tendant/device-trust/pkg/client"
	"github.com/tendant/device-trust/pkg/config"
	"github.com/tendant/device-trust/pkg/geo"
	"github.com/tendant/device-trust/pkg/identity"
	"github.com/tendant/device-trust/pkg/iprisk"
	"github.com/tendant/device-trust/pkg/ratelimit"
	"github.com/tendant/device-trust/pkg/reporting"
	"github.com/tendant/device-trust/pkg/sessions"
	"github.com/tendant/device-trust/pkg/trust"
	trustapi "github.com/tendant/device-trust/pkg/trust/api"
)

const (
	jwtSecret = "inmem-dev-secret-change-in-production"
	port      = 4000
	password  = "password123"
)

// demoLocations places the documentation address ranges in distant cities
// so impossible travel can be tried with X-Forwarded-For when
// TRUST_PROXY_HOPS=1 is set.
var demoLocations = map[string]geo.Location{
	"203.0.113.0/24":  {Country: "United Kingdom", City: "London", Latitude: ptr(51.5074), Longitude: ptr(-0.1278), Timezone: "Europe/London"},
	"198.51.100.0/24": {Country: "United States", City: "New York", Latitude: ptr(40.7128), Longitude: ptr(-74.0060), Timezone: "America/New_York"},
	"192.0.2.0/24":    {Country: "Japan", City: "Tokyo", Latitude: ptr(35.6762), Longitude: ptr(139.6503), Timezone: "Asia/Tokyo"},
}

func ptr(f float64) *float64 { return &f }

func seedUsers(ctx context.Context, users *identity.Service) error {
	if _, err := users.SeedAdmin(ctx, "Admin", "admin@example.com", password, 5); err != nil {
		return err
	}
	_, err := users.Register(ctx, identity.RegisterRequest{
		Name:     "John Doe",
		Email:    "john@example.com",
		Password: password,
	})
	return err
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: false,
		Level:     config.ParseLogLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting In-Memory Device Trust Service (no database required)")
	slog.Info(strings.Repeat("=", 60))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	locator, err := geo.NewStaticLocator(demoLocations)
	if err != nil {
		slog.Error("Failed to build demo locator", "error", err)
		os.Exit(1)
	}

	trustCfg := config.DefaultTrustConfig()
	trustCfg.SweepInterval = time.Minute

	users := identity.NewService(identity.NewInMemRepository())
	sessionRepo := sessions.NewInMemRepository()
	logs := activitylog.NewInMemRepository()
	engine := trust.New(users, sessionRepo, logs,
		trust.WithConfig(trustCfg),
		trust.WithRiskResolver(iprisk.NewResolver(iprisk.WithLocator(locator))),
	)
	reports := reporting.NewService(users, sessionRepo, logs)

	if err := seedUsers(ctx, users); err != nil {
		slog.Error("Failed to seed users", "error", err)
		os.Exit(1)
	}

	go trust.NewSweeper(engine, trustCfg.SweepInterval).Run(ctx)

	rateCfg := config.DefaultRateLimitConfig()
	jwtCfg := config.JWTConfig{
		Secret:         jwtSecret,
		Expiry:         trustCfg.SessionExpiry,
		CookieName:     "token",
		CookieHttpOnly: true,
		CookieSecure:   false,
	}
	proxyCfg := config.NewProxyConfigFromEnv()
	if err := proxyCfg.Validate(); err != nil {
		slog.Error("Invalid proxy configuration", "error", err)
		os.Exit(1)
	}
	ips := client.IPResolver{TrustedProxyHops: proxyCfg.TrustedHops}
	handler := trustapi.NewHandler(engine, users, reports, jwtCfg,
		trustapi.WithRateLimits(
			ratelimit.NewLoginMiddleware(rateCfg, ratelimit.WithKeyFunc(ips.ClientIP)),
			ratelimit.NewSignupMiddleware(rateCfg, ratelimit.WithKeyFunc(ips.ClientIP)),
		),
		trustapi.WithClientIP(ips.ClientIP),
	)

	router := chi.NewRouter()
	router.Use(client.KeepPeerAddr)
	server := app.NewApp(
		app.WithRouter(router),
		app.WithAppConfig(app.AppConfig{Server: app.Server{Host: "localhost", Port: port}}),
	)
	app.RoutesHealthz(server.R)
	handler.RegisterRoutes(server.R)

	slog.Info(strings.Repeat("=", 60))
	slog.Info("In-Memory Device Trust Service Ready")
	slog.Info("Base URL: http://localhost:" + strconv.Itoa(port))
	slog.Info("Trusted proxy hops: " + strconv.Itoa(proxyCfg.TrustedHops))
	slog.Info("")
	slog.Info("Test credentials:")
	slog.Info("  Admin: admin@example.com / " + password)
	slog.Info("  User:  john@example.com / " + password)
	slog.Info("")
	slog.Info("API Endpoints:")
	slog.Info("  POST /auth/login            - Login (needs deviceFingerprint)")
	slog.Info("  POST /auth/logout           - Logout")
	slog.Info("  GET  /user/dashboard        - Device slots (auth required)")
	slog.Info("  GET  /admin/logs            - Activity log (admin only)")
	slog.Info(strings.Repeat("=", 60))

	server.Run()
}

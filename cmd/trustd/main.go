package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jinzhu/copier"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"

	"github.com/tendant/device-trust/pkg/activitylog"
	"github.com/tendant/device-trust/pkg/bootstrap"
	"github.com/tendant/device-trust/pkg/client"
	"github.com/tendant/device-trust/pkg/config"
	"github.com/tendant/device-trust/pkg/dbmigrate"
	"github.com/tendant/device-trust/pkg/geo"
	"github.com/tendant/device-trust/pkg/identity"
	"github.com/tendant/device-trust/pkg/iprisk"
	"github.com/tendant/device-trust/pkg/ratelimit"
	"github.com/tendant/device-trust/pkg/reporting"
	"github.com/tendant/device-trust/pkg/sessions"
	"github.com/tendant/device-trust/pkg/sqlitedb"
	"github.com/tendant/device-trust/pkg/telemetry"
	"github.com/tendant/device-trust/pkg/trust"
	trustapi "github.com/tendant/device-trust/pkg/trust/api"
)

type AdminConfig struct {
	AdminName       string `env:"ADMIN_NAME" env-default:"Admin"`
	AdminEmail      string `env:"ADMIN_EMAIL" env-default:""`
	AdminPassword   string `env:"ADMIN_PASSWORD" env-default:""`
	AdminMaxDevices int    `env:"ADMIN_MAX_DEVICES" env-default:"5"`
}

type Config struct {
	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	AppConfig app.AppConfig
	Store     config.StoreConfig
	Database  config.DatabaseConfig
	SQLite    config.SQLiteConfig
	Trust     config.TrustConfig
	IPRisk    config.IPRiskConfig
	GeoIP     config.GeoIPConfig
	RateLimit config.RateLimitConfig
	Proxy     config.ProxyConfig
	JWT       config.JWTConfig
	Telemetry config.TelemetryConfig
	Admin     AdminConfig
}

func (c Config) Validate() error {
	validators := []func() error{
		c.Store.Validate,
		c.Trust.Validate,
		c.IPRisk.Validate,
		c.RateLimit.Validate,
		c.Proxy.Validate,
		c.JWT.Validate,
	}
	if c.Store.Persistence == config.PersistencePostgres {
		validators = append(validators, c.Database.Validate)
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

// loadEnvFile loads .env from the working directory or next to the
// executable. Variables already set in the environment win.
func loadEnvFile() {
	candidates := []string{".env"}
	if execPath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(execPath), ".env"))
	}
	for _, envFile := range candidates {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			slog.Error("Failed to load .env file", "error", err, "path", envFile)
			return
		}
		slog.Info("Configuration loaded from .env file", "path", envFile)
		return
	}
	slog.Debug("No .env file found")
}

type stores struct {
	users    identity.Repository
	sessions sessions.Repository
	logs     activitylog.Repository
	close    func()
}

func openStores(ctx context.Context, cfg Config) (*stores, error) {
	persistence := cfg.Store.Persistence
	var pool *pgxpool.Pool
	var sqliteDB *sql.DB
	closeFn := func() {}

	switch persistence {
	case config.PersistencePostgres:
		if cfg.Store.AutoMigrate {
			if err := dbmigrate.Run(cfg.Database.ToDatabaseURL(), dbmigrate.DirectionUp); err != nil {
				return nil, fmt.Errorf("failed to migrate postgres: %w", err)
			}
		}
		dbConfig := cfg.Database.ToDbConfig()
		p, err := dbutils.NewDbPool(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
			return nil, err
		}
		pool = p
		closeFn = pool.Close
	case config.PersistenceSQLite:
		if cfg.Store.AutoMigrate {
			if err := dbmigrate.Run(cfg.SQLite.ToMigrateURL(), dbmigrate.DirectionUp); err != nil {
				return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
			}
		}
		db, err := sqlitedb.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		sqliteDB = db
		closeFn = func() { _ = db.Close() }
	}

	// left nil unless a pool was opened
	var pg sessions.DBTX
	if pool != nil {
		pg = pool
	}

	s := &stores{close: closeFn}
	var err error
	if s.users, err = identity.NewRepository(persistence, identity.RepositoryConfig{Postgres: pg, SQLite: sqliteDB}); err != nil {
		closeFn()
		return nil, err
	}
	if s.sessions, err = sessions.NewRepository(persistence, sessions.RepositoryConfig{Postgres: pg, SQLite: sqliteDB}); err != nil {
		closeFn()
		return nil, err
	}
	if s.logs, err = activitylog.NewRepository(persistence, activitylog.RepositoryConfig{Postgres: pg, SQLite: sqliteDB}); err != nil {
		closeFn()
		return nil, err
	}
	return s, nil
}

func newResolver(cfg Config) (*iprisk.Resolver, func(), error) {
	opts := []iprisk.ResolverOption{iprisk.WithTimeout(cfg.IPRisk.Timeout)}
	closeFn := func() {}

	if cfg.IPRisk.APIKey != "" {
		opts = append(opts, iprisk.WithOracle(iprisk.NewVPNAPIClient(cfg.IPRisk)))
	} else {
		slog.Warn("VPN_API_KEY is not set, IP risk checks are disabled")
	}

	if cfg.GeoIP.DatabasePath != "" {
		locator, err := geo.OpenMaxMind(cfg.GeoIP.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, iprisk.WithLocator(locator))
		closeFn = func() { _ = locator.Close() }
	}
	return iprisk.NewResolver(opts...), closeFn, nil
}

func main() {
	loadEnvFile()

	cfg := Config{}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     config.ParseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.NewProvider(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("Failed to set up telemetry", "error", err)
		os.Exit(1)
	}
	provider.SetGlobal()
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			slog.Error("Failed to shut down telemetry", "error", err)
		}
	}()

	st, err := openStores(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open stores", "persistence", cfg.Store.Persistence, "error", err)
		os.Exit(1)
	}
	defer st.close()

	resolver, closeResolver, err := newResolver(cfg)
	if err != nil {
		slog.Error("Failed to open GeoIP database", "path", cfg.GeoIP.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer closeResolver()

	users := identity.NewService(st.users, identity.WithDefaultMaxDevices(cfg.Trust.MaxDevices))
	engine := trust.New(users, st.sessions, st.logs,
		trust.WithConfig(cfg.Trust),
		trust.WithRiskResolver(resolver),
	)
	reports := reporting.NewService(users, st.sessions, st.logs)

	if cfg.Admin.AdminEmail != "" {
		var adminCfg bootstrap.AdminBootstrapConfig
		if err := copier.Copy(&adminCfg, &cfg.Admin); err != nil {
			slog.Error("Failed to map admin configuration", "error", err)
			os.Exit(1)
		}
		adminCfg.Users = users
		result, err := bootstrap.BootstrapAdmin(ctx, adminCfg)
		if err != nil {
			slog.Error("Admin bootstrap failed", "error", err)
			os.Exit(1)
		}
		bootstrap.PrintBootstrapResult(os.Stdout, result)
		bootstrap.LogBootstrapSummary(result)
	}

	sweeper := trust.NewSweeper(engine, cfg.Trust.SweepInterval)
	go sweeper.Run(ctx)

	ips := client.IPResolver{TrustedProxyHops: cfg.Proxy.TrustedHops}
	handler := trustapi.NewHandler(engine, users, reports, cfg.JWT,
		trustapi.WithRateLimits(
			ratelimit.NewLoginMiddleware(cfg.RateLimit, ratelimit.WithKeyFunc(ips.ClientIP)),
			ratelimit.NewSignupMiddleware(cfg.RateLimit, ratelimit.WithKeyFunc(ips.ClientIP)),
		),
		trustapi.WithClientIP(ips.ClientIP),
	)

	// chi-demo adds middleware.RealIP; the peer address is kept before it runs
	router := chi.NewRouter()
	router.Use(client.KeepPeerAddr)
	server := app.NewApp(
		app.WithRouter(router),
		app.WithAppConfig(cfg.AppConfig),
		app.WithMetrics(true),
		app.WithCors(app.DefaultCorsOptions()),
		app.WithReqLogger(app.DefaultHttpLogger()),
	)
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)
	handler.RegisterRoutes(server.R)

	slog.Info("Device trust service starting",
		"persistence", cfg.Store.Persistence,
		"max_devices", cfg.Trust.MaxDevices,
		"session_expiry", cfg.Trust.SessionExpiry,
		"trusted_proxy_hops", cfg.Proxy.TrustedHops,
		"telemetry", provider.Exporting,
	)
	server.Run()
}

package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	swaggerfiles "github.com/swaggo/files"
	swagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "github.com/eruvnet/eruv-alerts-api/docs"
	"github.com/eruvnet/eruv-alerts-api/internal/config"
	"github.com/eruvnet/eruv-alerts-api/internal/handlers/alerts"
	weatherHandler "github.com/eruvnet/eruv-alerts-api/internal/handlers/weather"
	"github.com/eruvnet/eruv-alerts-api/internal/metrics"
	"github.com/eruvnet/eruv-alerts-api/internal/models"
	"github.com/eruvnet/eruv-alerts-api/internal/notifier"
	"github.com/eruvnet/eruv-alerts-api/internal/repository/sqlite"
	serviceCache "github.com/eruvnet/eruv-alerts-api/internal/services/cache"
	"github.com/eruvnet/eruv-alerts-api/internal/services/hebcal"
	httpLogger "github.com/eruvnet/eruv-alerts-api/internal/services/logger"
	"github.com/eruvnet/eruv-alerts-api/internal/services/message"
	"github.com/eruvnet/eruv-alerts-api/internal/services/status"
	serviceWeather "github.com/eruvnet/eruv-alerts-api/internal/services/weather"
	"github.com/eruvnet/eruv-alerts-api/internal/services/weather/decorators"
	"github.com/eruvnet/eruv-alerts-api/internal/sheets"
	"github.com/eruvnet/eruv-alerts-api/internal/sms"
)

const (
	timeoutDuration = 5 * time.Second

	fileMode = 0o644
)

type weatherGetterService interface {
	GetByZip(ctx context.Context, zipCode string) (models.WeatherData, error)
}

type ServiceContainer struct {
	SheetsClient   *sheets.Client
	WeatherService weatherGetterService
	HebcalClient   *hebcal.BreakerClient
	SMSSender      *sms.TwilioClient
	Composer       *message.Composer
	Notificator    *notifier.Notifier
	Repository     *sqlite.DeliveryRepository

	Router     *gin.Engine
	Srv        *http.Server
	Db         *sql.DB
	fileLogger *zap.Logger
	M          *metrics.Metrics
}

type App struct {
	cfg config.Config
	l   zerolog.Logger
}

func New(cfg config.Config, logger zerolog.Logger) *App {
	logger = logger.With().Str("service", "eruv-alerts-api").Timestamp().Logger()
	return &App{cfg: cfg, l: logger}
}

func (a *App) Start(ctx context.Context) error {
	srvContainer, err := a.init(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if cerr := srvContainer.Srv.Close(); cerr != nil {
			a.l.Error().Err(cerr).Msg("Error closing HTTP server")
		}
	}()

	srvContainer.Router.Use(gin.Recovery(), srvContainer.M.HTTPMiddleware())

	alertsHandler := alerts.NewHandler(srvContainer.Repository, srvContainer.Notificator, a.l)
	weatherH := weatherHandler.NewHandler(srvContainer.WeatherService)

	api := srvContainer.Router.Group("/api")
	{
		api.GET("/statuses", alertsHandler.Statuses)
		api.GET("/deliveries", alertsHandler.Deliveries)
		api.POST("/run", alertsHandler.Run)
		api.GET("/weather", weatherH.GetWeather)
	}
	srvContainer.Router.GET("/swagger/*any", swagger.WrapHandler(swaggerfiles.Handler))
	srvContainer.Router.GET("/metrics", gin.WrapH(srvContainer.M.Handler()))

	srvContainer.Notificator.Start(ctx)
	a.l.Info().Msg("Notifier started")

	errCh := make(chan error, 1)
	go func() {
		a.l.Info().Str("http_addr", a.cfg.ServerAddress()).Msg("HTTP server listening")
		if err := srvContainer.Srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.l.Error().Err(err).Msg("HTTP server error")
		return err
	case <-ctx.Done():
		a.l.Info().Msg("Shutdown signal received")
		return a.Stop(srvContainer)
	}
}

func (a *App) Stop(srvContainer *ServiceContainer) error {
	a.l.Info().Msg("Stopping application")

	srvContainer.Notificator.Stop()
	a.l.Info().Msg("Notifier stopped")

	ctx, cancel := context.WithTimeout(context.Background(), timeoutDuration)
	defer cancel()
	if err := srvContainer.Srv.Shutdown(ctx); err != nil {
		a.l.Error().Err(err).Msg("HTTP shutdown error")
	} else {
		a.l.Info().Msg("HTTP server stopped")
	}

	if err := srvContainer.Db.Close(); err != nil {
		a.l.Error().Err(err).Msg("Database close error")
	} else {
		a.l.Info().Msg("Database closed")
	}

	if err := srvContainer.fileLogger.Sync(); err != nil {
		a.l.Warn().Err(err).Msg("HTTP log sync error")
	}

	a.l.Info().Msg("Application shutdown complete")
	return nil
}

func (a *App) init(ctx context.Context) (*ServiceContainer, error) {
	a.l.Info().Msg("Initializing application")

	dbCtx, cancel := context.WithTimeout(ctx, timeoutDuration)
	defer cancel()
	db, err := CreateSqliteDb(dbCtx, a.cfg.DB.Dialect, a.cfg.DB.Source)
	if err != nil {
		a.l.Error().Err(err).Msg("DB open error")
		return nil, err
	}
	if err := InitSqliteDb(db, a.cfg.DB.Dialect, a.cfg.DB.MigrationsPath); err != nil {
		a.l.Error().Err(err).Msg("DB migration error")
		return nil, err
	}

	m := metrics.NewMetrics("eruv_alerts", db, a.cfg.DB.Source)

	router := gin.New()

	httpSrv := &http.Server{
		Addr:        a.cfg.ServerAddress(),
		Handler:     router,
		ReadTimeout: time.Duration(a.cfg.Server.ReadTimeout) * time.Second,
	}

	repo := sqlite.NewDeliveryRepository(db, a.l, m)

	sheetsClient, err := sheets.New(ctx, a.cfg.Sheets, a.l)
	if err != nil {
		a.l.Error().Err(err).Msg("Sheets client error")
		return nil, err
	}

	// Every outbound API call goes through the zap request log.
	fileLogger, err := newFileLogger(a.cfg.HTTPLogsPath)
	if err != nil {
		a.l.Error().Err(err).Msg("failed to create HTTP log file logger")
		return nil, err
	}
	httpLogClient := &http.Client{
		Transport: httpLogger.NewRoundTripper(fileLogger),
	}

	breakerInterval := time.Duration(a.cfg.Breaker.TimeInterval) * time.Second
	breakerTimeout := time.Duration(a.cfg.Breaker.TimeTimeOut) * time.Second

	openWeatherMapClient := serviceWeather.NewClientOpenWeatherMap(
		a.cfg.Weather.OpenWeatherMapAPIKey,
		a.cfg.Weather.OpenWeatherMapURL,
		httpLogClient,
		a.l,
	)
	weatherBitClient := serviceWeather.NewClientWeatherBit(
		a.cfg.Weather.WeatherBitAPIKey,
		a.cfg.Weather.WeatherBitURL,
		httpLogClient,
		a.l,
	)
	weatherChain := serviceWeather.NewService(a.l,
		serviceWeather.NewBreakerClient("OpenWeatherMap", openWeatherMapClient,
			breakerInterval, breakerTimeout, a.cfg.Breaker.RepeatNumber),
		serviceWeather.NewBreakerClient("WeatherBit", weatherBitClient,
			breakerInterval, breakerTimeout, a.cfg.Breaker.RepeatNumber),
	)

	redisClient := redis.NewClient(&redis.Options{
		Addr: a.cfg.Redis.Address(),
		DB:   a.cfg.Redis.Db,
	})
	weatherCache := serviceCache.NewRedisClient[models.WeatherData](redisClient, a.l, a.cfg.Redis.TTL())
	weatherService := decorators.NewCachedService(weatherChain, weatherCache, a.l)

	hebcalClient := hebcal.NewBreakerClient("Hebcal",
		hebcal.NewClient(a.cfg.Hebcal.URL, a.cfg.Hebcal.HavdalahMins, httpLogClient, a.l),
		breakerInterval, breakerTimeout, a.cfg.Breaker.RepeatNumber,
	)

	smsSender := sms.NewTwilioClient(
		a.cfg.Twilio.AccountSID,
		a.cfg.Twilio.AuthToken,
		a.cfg.Twilio.From,
		a.cfg.Twilio.BaseURL,
		httpLogClient,
		a.l,
	)

	composer := message.NewComposer(message.Options{
		SkipCandleLighting: a.cfg.Message.SkipCandleLighting,
		SkipHavdalah:       a.cfg.Message.SkipHavdalah,
		DonateLinks:        a.cfg.Message.DonateLinks,
		HavdalahMins:       a.cfg.Hebcal.HavdalahMins,
	}, a.l)

	statusService := status.NewService(a.l)

	n := notifier.New(
		sheetsClient,
		statusService,
		hebcalClient,
		weatherService,
		composer,
		smsSender,
		repo,
		a.l,
		notifier.Options{
			Schedule:     a.cfg.Notifier.Schedule,
			MaxSendDelay: a.cfg.Notifier.MaxSendDelay,
			DryRun:       a.cfg.Notifier.DryRun,
		},
		m,
	)

	return &ServiceContainer{
		SheetsClient:   sheetsClient,
		WeatherService: weatherService,
		HebcalClient:   hebcalClient,
		SMSSender:      smsSender,
		Composer:       composer,
		Notificator:    n,
		Repository:     repo,
		Router:         router,
		Srv:            httpSrv,
		Db:             db,
		fileLogger:     fileLogger,
		M:              m,
	}, nil
}

func CreateSqliteDb(ctx context.Context, dialect, name string) (*sql.DB, error) {
	if name == "" {
		return nil, errors.New("database name cannot be empty")
	}
	connectionString := "file:" + name + "?cache=shared&mode=rwc"
	db, err := sql.Open(dialect, connectionString)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	return db, nil
}

func InitSqliteDb(db *sql.DB, dialect, migrationPath string) error {
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}

	if err := goose.Up(db, migrationPath); err != nil {
		return err
	}

	return nil
}

func newFileLogger(filePath string) (*zap.Logger, error) {
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(filepath.Clean(filePath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, fileMode)
	if err != nil {
		return nil, err
	}

	writer := zapcore.AddSync(file)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		writer,
		zap.InfoLevel,
	)
	return zap.New(core), nil
}

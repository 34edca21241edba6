package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Server struct {
	Host        string `envconfig:"SERVER_HOST" default:"localhost"`
	Port        string `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout int    `envconfig:"SERVER_TIMEOUT" default:"10"`
}

type Db struct {
	Dialect        string `envconfig:"DB_DIALECT" default:"sqlite"`
	Source         string `envconfig:"DB_NAME" default:"eruv_alerts.db"`
	MigrationsPath string `envconfig:"DB_MIGRATIONS_DIR" default:"./migrations"`
}

type Sheets struct {
	CredentialsFile  string `envconfig:"SHEETS_CREDENTIALS_FILE" default:"keys/google_auth.json"`
	SpreadsheetID    string `envconfig:"SHEETS_SPREADSHEET_ID" required:"true"`
	SubscribersSheet string `envconfig:"SHEETS_SUBSCRIBERS_SHEET" default:"Subscribers"`
	CommunitiesSheet string `envconfig:"SHEETS_COMMUNITIES_SHEET" default:"Communities"`
	StatusSheet      string `envconfig:"SHEETS_STATUS_SHEET" default:"Status"`
}

type Twilio struct {
	AccountSID string `envconfig:"TWILIO_ACCOUNT_SID" required:"true"`
	AuthToken  string `envconfig:"TWILIO_AUTH_TOKEN" required:"true"`
	From       string `envconfig:"TWILIO_FROM_NUMBER" required:"true"`
	BaseURL    string `envconfig:"TWILIO_BASE_URL" default:"https://api.twilio.com"`
}

type Weather struct {
	OpenWeatherMapAPIKey string `envconfig:"OPEN_WEATHER_MAP_API_KEY"`
	OpenWeatherMapURL    string `envconfig:"OPEN_WEATHER_MAP_URL" default:"https://api.openweathermap.org/data/2.5/weather"`
	WeatherBitAPIKey     string `envconfig:"WEATHERBIT_API_KEY"`
	WeatherBitURL        string `envconfig:"WEATHERBIT_URL" default:"https://api.weatherbit.io/v2.0/current"`
}

type Hebcal struct {
	URL          string `envconfig:"HEBCAL_URL" default:"https://www.hebcal.com/shabbat"`
	HavdalahMins int    `envconfig:"HEBCAL_HAVDALAH_MINS" default:"50"`
}

type Redis struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     string `envconfig:"REDIS_PORT" default:"6379"`
	Db       int    `envconfig:"REDIS_DB" default:"0"`
	LiveTime int    `envconfig:"REDIS_LIVE_TIME" default:"30"`
}

type Breaker struct {
	TimeInterval int    `envconfig:"BREAKER_INTERVAL" default:"30"`
	TimeTimeOut  int    `envconfig:"BREAKER_TIMEOUT" default:"15"`
	RepeatNumber uint32 `envconfig:"BREAKER_REPEAT_NUM" default:"5"`
}

type Notifier struct {
	// Schedule uses the six-field cron syntax (with seconds).
	Schedule     string `envconfig:"NOTIFIER_SCHEDULE" default:"0 0 14 * * 5"`
	MaxSendDelay int    `envconfig:"NOTIFIER_MAX_SEND_DELAY" default:"2"`
	DryRun       bool   `envconfig:"NOTIFIER_DRY_RUN" default:"false"`
}

type Message struct {
	SkipCandleLighting bool `envconfig:"MESSAGE_SKIP_CANDLE_LIGHTING" default:"false"`
	SkipHavdalah       bool `envconfig:"MESSAGE_SKIP_HAVDALAH" default:"false"`
	// DonateLinks maps a city to a fundraising link appended to its
	// alerts, e.g. "North Miami Beach:bit.ly/nmberuv".
	DonateLinks map[string]string `envconfig:"MESSAGE_DONATE_LINKS"`
}

type Config struct {
	Sheets   Sheets
	Twilio   Twilio
	Weather  Weather
	Hebcal   Hebcal
	Redis    Redis
	Breaker  Breaker
	Notifier Notifier
	Message  Message
	Server   Server
	DB       Db

	LogsPath     string `envconfig:"LOGS_PATH" default:"logs/eruv_alerts.log"`
	HTTPLogsPath string `envconfig:"HTTP_LOGS_PATH" default:"logs/outbound_http.log"`
}

func NewConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ServerAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

func (r *Redis) Address() string {
	return r.Host + ":" + r.Port
}

func (r *Redis) TTL() time.Duration {
	return time.Duration(r.LiveTime) * time.Minute
}

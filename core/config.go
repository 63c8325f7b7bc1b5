package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Database engines
const (
	EnginePostgres = "postgres"
	EngineBolt     = "bolt"
	EngineMemory   = "memory"
)

type (
	Config struct {
		Env                       string // DEV (local; default), TEST, QA, PROD
		Build                     string
		Debug                     bool
		TestMode                  bool
		WorkDir                   string
		AppName                   string
		SecretKey                 string
		FrontendBaseURL           string
		DefaultFromEmail          mail.Address
		SendgridApiKey            string
		RollbarToken              string
		TelegramBotToken          string
		PasswordResetTimeoutDelta time.Duration

		Server    ServerConfig
		Database  DatabaseConfig
		Timetable TimetableConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugAddress              string
		ShutdownTimeout           time.Duration
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		SessionName               string
		DisableReqLogs            bool
	}

	DatabaseConfig struct {
		Engine        string // postgres | bolt | memory
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		BoltPath      string
	}

	TimetableConfig struct {
		SeedDemo           bool
		AllowDoubleBooking bool
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, db.Port)
}

// NewConfig reads the configuration from the environment.
// Every key can be overridden with an env var prefixed with the current ENV, ie: DEV_DATABASE_ENGINE=bolt
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Ratiba")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "Ratiba <noreply@localhost>")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugAddress", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 4*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.sessionName", "ratiba_session")

	v.SetDefault("database.engine", EngineBolt)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "ratiba")
	v.SetDefault("database.user", "ratiba")
	v.SetDefault("database.boltPath", "ratiba.db")

	v.SetDefault("timetable.seedDemo", false)
	v.SetDefault("timetable.allowDoubleBooking", false)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
		v.SetDefault("database.engine", EngineMemory)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := os.Getenv("WORK_DIR")
	if wd == "" {
		var err error
		if wd, err = os.Getwd(); err != nil {
			log.Fatalf("config.os.Getwd(): %v", err)
		}
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	fromEmail, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}

	boltPath := v.GetString("database.boltPath")
	if !filepath.IsAbs(boltPath) {
		boltPath = filepath.Join(wd, boltPath)
	}

	return &Config{
		Env:                       env,
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		WorkDir:                   wd,
		AppName:                   v.GetString("appName"),
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           v.GetString("frontendBaseURL"),
		DefaultFromEmail:          *fromEmail,
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		RollbarToken:              v.GetString("rollbarToken"),
		TelegramBotToken:          v.GetString("telegramBotToken"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugAddress:              v.GetString("server.debugAddress"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			ReadTimeout:               v.GetDuration("server.readTimeout"),
			WriteTimeout:              v.GetDuration("server.writeTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			SessionName:               v.GetString("server.sessionName"),
			DisableReqLogs:            v.GetBool("server.disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        strings.ToLower(v.GetString("database.engine")),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			BoltPath:      boltPath,
		},
		Timetable: TimetableConfig{
			SeedDemo:           v.GetBool("timetable.seedDemo"),
			AllowDoubleBooking: v.GetBool("timetable.allowDoubleBooking"),
		},
	}
}

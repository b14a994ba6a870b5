package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	dbConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	serverConfig struct {
		Host            string
		Port            string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	canvasConfig struct {
		BaseURL           string
		AccessToken       string
		Timeout           time.Duration
		RequestsPerSecond float64
	}

	// ScoringConfig mirrors participation.ScoringOptions so that core stays free of domain imports.
	ScoringConfig struct {
		Weighted       bool
		Decay          float64
		Cap            float64
		StreakSessions int
	}

	activityConfig struct {
		AttendanceThresholdWeeks int
		CanvasThresholdWeeks     int
	}

	scheduleConfig struct {
		Enabled      bool
		MetricsCron  string
		ActivityCron string
	}

	Config struct {
		v *viper.Viper

		Debug    bool
		TestMode bool
		Env      string
		Build    string
		AppName  string
		AdminKey string
		Timezone string

		DefaultFromEmailName    string
		DefaultFromEmailAddress string
		SendgridApiKey          string
		RollbarToken            string

		Database dbConfig
		Server   serverConfig
		Canvas   canvasConfig
		Activity activityConfig
		Schedule scheduleConfig

		mu      sync.RWMutex
		scoring ScoringConfig
	}
)

func (c dbConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c serverConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// NewConfig loads the configuration from defaults, config/.env.<env>, an optional CONFIG_FILE and the environment.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "CTI Accelerate")
	v.SetDefault("adminKey", "")
	v.SetDefault("timezone", "America/Los_Angeles")
	v.SetDefault("defaultFromEmailName", "CTI Team")
	v.SetDefault("defaultFromEmailAddress", "noreply@localhost")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "cti")
	v.SetDefault("database.user", "cti")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.debugHost", "localhost:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)

	v.SetDefault("canvas.baseURL", "https://canvas.instructure.com")
	v.SetDefault("canvas.accessToken", "")
	v.SetDefault("canvas.timeout", 10*time.Second)
	v.SetDefault("canvas.requestsPerSecond", 5.0)

	v.SetDefault("scoring.weighted", false)
	v.SetDefault("scoring.decay", 0.90)
	v.SetDefault("scoring.cap", 1.0)
	v.SetDefault("scoring.streakSessions", 1)

	v.SetDefault("activity.attendanceThresholdWeeks", 2)
	v.SetDefault("activity.canvasThresholdWeeks", 2)

	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.metricsCron", "0 6 * * *")
	v.SetDefault("schedule.activityCron", "0 7 * * 1")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "QA", "PROD":
		v.SetDefault("debug", false)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			log.Fatalf("config.ReadInConfig(%s): %v", path, err)
		}
	}

	conf := &Config{v: v, Env: env}
	conf.load()
	return conf
}

func (c *Config) load() {
	v := c.v
	c.Debug = v.GetBool("debug")
	c.TestMode = v.GetBool("testMode")
	c.Build = v.GetString("build")
	c.AppName = v.GetString("appName")
	c.AdminKey = v.GetString("adminKey")
	c.Timezone = v.GetString("timezone")
	c.DefaultFromEmailName = v.GetString("defaultFromEmailName")
	c.DefaultFromEmailAddress = v.GetString("defaultFromEmailAddress")
	c.SendgridApiKey = v.GetString("sendgridApiKey")
	c.RollbarToken = v.GetString("rollbarToken")

	c.Database = dbConfig{
		Engine:        v.GetString("database.engine"),
		Host:          v.GetString("database.host"),
		Port:          v.GetString("database.port"),
		Name:          v.GetString("database.name"),
		User:          v.GetString("database.user"),
		Password:      v.GetString("database.password"),
		AdminUser:     v.GetString("database.adminUser"),
		AdminPassword: v.GetString("database.adminPassword"),
		DisableTLS:    v.GetBool("database.disableTLS"),
	}
	c.Server = serverConfig{
		Host:            v.GetString("server.host"),
		Port:            v.GetString("server.port"),
		DebugHost:       v.GetString("server.debugHost"),
		ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
	}
	c.Canvas = canvasConfig{
		BaseURL:           strings.TrimRight(v.GetString("canvas.baseURL"), "/"),
		AccessToken:       v.GetString("canvas.accessToken"),
		Timeout:           v.GetDuration("canvas.timeout"),
		RequestsPerSecond: v.GetFloat64("canvas.requestsPerSecond"),
	}
	c.Activity = activityConfig{
		AttendanceThresholdWeeks: v.GetInt("activity.attendanceThresholdWeeks"),
		CanvasThresholdWeeks:     v.GetInt("activity.canvasThresholdWeeks"),
	}
	c.Schedule = scheduleConfig{
		Enabled:      v.GetBool("schedule.enabled"),
		MetricsCron:  v.GetString("schedule.metricsCron"),
		ActivityCron: v.GetString("schedule.activityCron"),
	}
	c.setScoring(c.readScoring())
}

func (c *Config) readScoring() ScoringConfig {
	return ScoringConfig{
		Weighted:       c.v.GetBool("scoring.weighted"),
		Decay:          c.v.GetFloat64("scoring.decay"),
		Cap:            c.v.GetFloat64("scoring.cap"),
		StreakSessions: c.v.GetInt("scoring.streakSessions"),
	}
}

func (c *Config) setScoring(sc ScoringConfig) {
	c.mu.Lock()
	c.scoring = sc
	c.mu.Unlock()
}

// Scoring returns the current participation scoring settings. Safe for concurrent use.
func (c *Config) Scoring() ScoringConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scoring
}

// WatchScoring reloads the scoring settings whenever CONFIG_FILE changes on disk.
// It is a no-op when no config file is in use.
func (c *Config) WatchScoring(onChange func(ScoringConfig)) {
	if c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		sc := c.readScoring()
		c.setScoring(sc)
		if onChange != nil {
			onChange(sc)
		}
	})
	c.v.WatchConfig()
}

func (c *Config) IsProduction() bool {
	return c.Env == "PROD"
}

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.DefaultFromEmailName, Address: c.DefaultFromEmailAddress}
}

// Location returns the program time zone, falling back to UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Print(fmt.Errorf("core.Config.Location(%s): %v", c.Timezone, err))
		return time.UTC
	}
	return loc
}

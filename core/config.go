package core

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address         string
		DebugHost       string
		Host            string
		JWTSecret       string
		JWTExpiration   time.Duration
		ShutdownTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Address  string
		Password string
		DB       int
	}

	// FirebaseConfig holds the credentials of the hosted identity service.
	// Missing values are left empty; they never stop the process from starting.
	FirebaseConfig struct {
		APIKey    string
		ProjectID string
		AppID     string
		BaseURL   string
		Timeout   time.Duration
	}

	Config struct {
		AppName                   string
		Env                       string
		Build                     string
		Debug                     bool
		TestMode                  bool
		SecretKey                 string
		DefaultFromEmail          string
		FrontendBaseURL           string
		PasswordResetTimeoutDelta time.Duration
		SendgridAPIKey            string
		RollbarToken              string

		// StorageBackend is one of "memory", "redis" or "postgres".
		StorageBackend string
		// IdentityBackend is one of "local" or "firebase".
		IdentityBackend string

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Firebase FirebaseConfig

		// Warnings collects non fatal problems found while loading, logged once a logger exists.
		Warnings []string
	}
)

func (c DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthDomain is the hosted sign-in domain of the Firebase project.
func (c FirebaseConfig) AuthDomain() string {
	if c.ProjectID == "" {
		return ""
	}
	return c.ProjectID + ".firebaseapp.com"
}

func (c FirebaseConfig) IsComplete() bool {
	return c.APIKey != "" && c.ProjectID != "" && c.AppID != ""
}

// NewConfig reads the configuration once from the environment.
// `config/.env.<env>` is loaded first when it exists (ENV: DEV (default), TEST, QA, PROD).
func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("testMode", false)
	conf.SetDefault("build", "develop")
	conf.SetDefault("appName", "Companion")
	conf.SetDefault("secretKey", "k3y-9w!qz_7rmv(b2)e=campus&companion^dev#sx4tn0")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("frontendBaseURL", "http://localhost:8080")
	conf.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	conf.SetDefault("sendgridApiKey", "")
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("storageBackend", "memory")
	conf.SetDefault("identityBackend", "local")

	conf.SetDefault("server.address", ":8000")
	conf.SetDefault("server.debugHost", ":4000")
	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.jwtExpiration", 7*24*time.Hour)
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", 5432)
	conf.SetDefault("database.name", "companion")
	conf.SetDefault("database.user", "companion")
	conf.SetDefault("database.password", "")
	conf.SetDefault("database.adminUser", "postgres")
	conf.SetDefault("database.adminPassword", "")
	conf.SetDefault("database.disableTLS", true)

	conf.SetDefault("redis.address", "localhost:6379")
	conf.SetDefault("redis.password", "")
	conf.SetDefault("redis.db", 0)

	conf.SetDefault("firebase.baseURL", "https://identitytoolkit.googleapis.com/v1")
	conf.SetDefault("firebase.timeout", 10*time.Second)
	conf.SetDefault("firebase.configFile", filepath.Join("config", "firebase.env"))

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}

	var warnings []string

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	conf.AutomaticEnv()

	firebase, fbWarnings := loadFirebaseConfig(conf)
	warnings = append(warnings, fbWarnings...)

	return &Config{
		AppName:                   conf.GetString("appName"),
		Env:                       env,
		Build:                     conf.GetString("build"),
		Debug:                     conf.GetBool("debug"),
		TestMode:                  conf.GetBool("testMode"),
		SecretKey:                 conf.GetString("secretKey"),
		DefaultFromEmail:          conf.GetString("defaultFromEmail"),
		FrontendBaseURL:           conf.GetString("frontendBaseURL"),
		PasswordResetTimeoutDelta: conf.GetDuration("passwordResetTimeoutDelta"),
		SendgridAPIKey:            conf.GetString("sendgridApiKey"),
		RollbarToken:              conf.GetString("rollbarToken"),
		StorageBackend:            strings.ToLower(conf.GetString("storageBackend")),
		IdentityBackend:           strings.ToLower(conf.GetString("identityBackend")),
		Server: ServerConfig{
			Address:         conf.GetString("server.address"),
			DebugHost:       conf.GetString("server.debugHost"),
			Host:            conf.GetString("server.host"),
			JWTSecret:       conf.GetString("secretKey"),
			JWTExpiration:   conf.GetDuration("server.jwtExpiration"),
			ShutdownTimeout: conf.GetDuration("server.shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetInt("database.port"),
			Name:          conf.GetString("database.name"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			Address:  conf.GetString("redis.address"),
			Password: conf.GetString("redis.password"),
			DB:       conf.GetInt("redis.db"),
		},
		Firebase: firebase,
		Warnings: warnings,
	}
}

// loadFirebaseConfig reads FIREBASE_API_KEY, FIREBASE_PROJECT_ID and FIREBASE_APP_ID from the environment.
// Values still missing are looked up in the local file named by FIREBASE_CONFIGFILE.
func loadFirebaseConfig(conf *viper.Viper) (FirebaseConfig, []string) {
	fb := FirebaseConfig{
		APIKey:    os.Getenv("FIREBASE_API_KEY"),
		ProjectID: os.Getenv("FIREBASE_PROJECT_ID"),
		AppID:     os.Getenv("FIREBASE_APP_ID"),
		BaseURL:   conf.GetString("firebase.baseURL"),
		Timeout:   conf.GetDuration("firebase.timeout"),
	}
	if fb.IsComplete() {
		return fb, nil
	}

	var warnings []string
	warnings = append(warnings, "firebase configuration not found in environment variables")

	path := conf.GetString("firebase.configFile")
	if !filepath.IsAbs(path) {
		path = filepath.Join(Getwd(), path)
	}
	vals, err := godotenv.Read(path)
	switch {
	case err == nil:
		if fb.APIKey == "" {
			fb.APIKey = vals["FIREBASE_API_KEY"]
		}
		if fb.ProjectID == "" {
			fb.ProjectID = vals["FIREBASE_PROJECT_ID"]
		}
		if fb.AppID == "" {
			fb.AppID = vals["FIREBASE_APP_ID"]
		}
	case os.IsNotExist(err):
		warnings = append(warnings, fmt.Sprintf("firebase config file %s not found", path))
	default:
		warnings = append(warnings, fmt.Sprintf("reading firebase config file %s: %v", path, err))
	}

	if !fb.IsComplete() {
		warnings = append(warnings, "firebase configuration incomplete; missing values left empty")
	}
	return fb, warnings
}

package core

import (
	"fmt"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers
const (
	StoragePostgres = "postgres"
	StorageBolt     = "bolt"
)

type (
	Config struct {
		Debug            bool
		TestMode         bool
		Env              string
		Build            string
		AppName          string
		SecretKey        string
		RollbarToken     string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		SendgridAPIKey   string
		Server           ServerConfig
		Storage          StorageConfig
		Database         DatabaseConfig
		Links            LinksConfig
	}

	ServerConfig struct {
		Address            string
		Host               string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	StorageConfig struct {
		Driver   string
		BoltPath string
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Name          string
		DisableTLS    bool
	}

	LinksConfig struct {
		// ReconcileSchedule is a cron spec; empty disables periodic link reconciliation.
		ReconcileSchedule string
	}
)

func (db DatabaseConfig) Address() string {
	return db.Host + ":" + db.Port
}

// NewConfig loads the configuration of the current ENV (DEV (local; default), TEST, QA, PROD).
// Values are read from the environment (prefixed by ENV, eg. PROD_SECRETKEY) and from an optional
// config/.env.<env> file.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(configDir(), ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("testMode"),
		Env:             env,
		Build:           v.GetString("build"),
		AppName:         v.GetString("appName"),
		SecretKey:       v.GetString("secretKey"),
		RollbarToken:    v.GetString("rollbarToken"),
		FrontendBaseURL: v.GetString("frontendBaseURL"),
		DefaultFromEmail: mail.Address{
			Name:    v.GetString("appName"),
			Address: v.GetString("defaultFromEmail"),
		},
		SendgridAPIKey: v.GetString("sendgridAPIKey"),
		Server: ServerConfig{
			Address:            v.GetString("server.address"),
			Host:               v.GetString("server.host"),
			DebugHost:          v.GetString("server.debugHost"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Storage: StorageConfig{
			Driver:   strings.ToLower(v.GetString("storage.driver")),
			BoltPath: v.GetString("storage.boltPath"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			Name:          v.GetString("database.name"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Links: LinksConfig{
			ReconcileSchedule: v.GetString("links.reconcileSchedule"),
		},
	}
	if !conf.Debug && conf.SecretKey == defaultSecretKey {
		log.Printf("config: %s is running with the default secret key", env)
	}
	return conf
}

const defaultSecretKey = "x8s!k2#vq-9@r^n3l$yp)w7(zt+e5m&u4c=b0d*h6f_j1g%a"

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Sikhya")
	v.SetDefault("secretKey", defaultSecretKey)
	v.SetDefault("rollbarToken", "")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("sendgridAPIKey", "")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("storage.driver", StoragePostgres)
	v.SetDefault("storage.boltPath", filepath.Join("data", "sikhya.db"))

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "sikhya")
	v.SetDefault("database.password", "sikhya")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.name", "sikhya")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("links.reconcileSchedule", "")
}

// configDir returns CONFIG_DIR when set, otherwise ./config relative to the working directory.
func configDir() string {
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return dir
	}
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(fmt.Errorf("config.os.Getwd: %v", err))
	}
	return filepath.Join(wd, "config")
}

// NewTestConfig returns the configuration used by tests: debug off, test mode on, fixed secret.
func NewTestConfig() *Config {
	return &Config{
		TestMode:         true,
		Env:              "TEST",
		Build:            "test",
		AppName:          "Sikhya",
		SecretKey:        "secret",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Name: "Sikhya", Address: "noreply@localhost"},
		Server: ServerConfig{
			Address:            ":0",
			Host:               "localhost",
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: time.Hour,
		},
		Storage: StorageConfig{Driver: StorageBolt},
	}
}

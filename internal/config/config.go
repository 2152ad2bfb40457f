package config

import (
	"errors"  // For validation errors
	"os"      // For environment variables
	"strconv" // For string to int conversion
	"strings" // For list parsing

	"github.com/joho/godotenv" // For loading .env files
)

// Insecure development defaults. Production startup is refused while
// either secret is left at these values.
const (
	DefaultJWTSecret    = "dev-jwt-secret"
	DefaultControlToken = "dev-token"
)

// Config holds the application configuration
type Config struct {
	AppPort      string   // Application port
	DBUser       string   // Database user
	DBPassword   string   // Database password
	DBHost       string   // Database host
	DBPort       string   // Database port
	DBName       string   // Database name
	JWTSecret    string   // Session-signing secret
	ControlToken string   // Master control credential
	MasterUser   string   // Username treated as master
	RPID         string   // WebAuthn relying-party id
	RPName       string   // WebAuthn relying-party display name
	RPOrigins    []string // Allowed WebAuthn origins
	RedisAddr    string   // Redis server address
	RedisPass    string   // Redis password
	RedisDB      int      // Redis database number
	IsProd       bool     // Is production environment
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	cfg := &Config{
		AppPort:      os.Getenv("APP_PORT"),
		DBUser:       os.Getenv("DB_USER"),
		DBPassword:   os.Getenv("DB_PASSWORD"),
		DBHost:       os.Getenv("DB_HOST"),
		DBPort:       os.Getenv("DB_PORT"),
		DBName:       os.Getenv("DB_NAME"),
		JWTSecret:    getenvDefault("JWT_SECRET", DefaultJWTSecret),
		ControlToken: getenvDefault("CONTROL_TOKEN", DefaultControlToken),
		MasterUser:   getenvDefault("MASTER_USER", "master"),
		RPID:         getenvDefault("RP_ID", "localhost"),
		RPName:       getenvDefault("RP_NAME", "Control Plane"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RedisPass:    os.Getenv("REDIS_PASS"),
		RedisDB:      redisDB,
		IsProd:       os.Getenv("IS_PROD") == "true",
	}
	// Allowed WebAuthn origins, comma-separated; default to the RP id over https
	if origins := os.Getenv("RP_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.RPOrigins = append(cfg.RPOrigins, o)
			}
		}
	} else {
		cfg.RPOrigins = []string{"https://" + cfg.RPID}
	}
	return cfg
}

// Validate rejects configurations that are unsafe to run in production.
// Development mode tolerates the insecure defaults.
func (c *Config) Validate() error {
	if !c.IsProd {
		return nil
	}
	if c.JWTSecret == "" || c.JWTSecret == DefaultJWTSecret {
		return errors.New("JWT_SECRET is unset or left at its insecure default; refusing to start in production")
	}
	if c.ControlToken == "" || c.ControlToken == DefaultControlToken {
		return errors.New("CONTROL_TOKEN is unset or left at its insecure default; refusing to start in production")
	}
	return nil
}

// getenvDefault reads an environment variable with a fallback value
func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

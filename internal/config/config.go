// Package config loads runtime settings from defaults, an optional .env
// file, the environment, and command-line flags, in that order.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"

	ImagesDisk  = "disk"
	ImagesMinIO = "minio"
)

// Config holds runtime settings.
type Config struct {
	Addr    string
	LogFile string
	Debug   bool

	AdminUser     string
	AdminPass     string
	AdminPassHash string
	JWTSecret     string

	DBBackend  string
	SQLitePath string
	MongoURL   string
	DBName     string

	ImageBackend   string
	UploadsDir     string
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	CORSOrigins []string
}

// Defaults returns the development defaults.
func Defaults() *Config {
	return &Config{
		Addr:         ":8000",
		AdminUser:    "admin",
		DBBackend:    BackendSQLite,
		SQLitePath:   "jimmystore.sqlite3",
		MongoURL:     "mongodb://localhost:27017",
		DBName:       "jimmystore",
		ImageBackend: ImagesDisk,
		UploadsDir:   "uploads",
		MinIOBucket:  "jimmystore",
		CORSOrigins:  []string{"http://localhost:3000"},
	}
}

// Load builds a Config. envFile is loaded with godotenv when it exists;
// variables already set in the environment win over the file.
func Load(args []string, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	cfg := Defaults()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.parseFlags(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", key, err)
		}
		*dst = b
		return nil
	}

	str("ADDR", &c.Addr)
	str("LOG_FILE", &c.LogFile)
	str("ADMIN_USER", &c.AdminUser)
	str("ADMIN_PASS", &c.AdminPass)
	str("ADMIN_PASS_HASH", &c.AdminPassHash)
	str("JWT_SECRET", &c.JWTSecret)
	str("DB_BACKEND", &c.DBBackend)
	str("SQLITE_PATH", &c.SQLitePath)
	str("MONGO_URL", &c.MongoURL)
	str("DB_NAME", &c.DBName)
	str("IMAGE_BACKEND", &c.ImageBackend)
	str("UPLOADS_DIR", &c.UploadsDir)
	str("MINIO_ENDPOINT", &c.MinIOEndpoint)
	str("MINIO_ACCESS_KEY", &c.MinIOAccessKey)
	str("MINIO_SECRET_KEY", &c.MinIOSecretKey)
	str("MINIO_BUCKET", &c.MinIOBucket)
	if v, ok := lookup("CORS_ORIGINS"); ok {
		c.CORSOrigins = splitList(v)
	}

	if err := boolean("MINIO_USE_SSL", &c.MinIOUseSSL); err != nil {
		return err
	}
	return boolean("JIMMYSTORE_DEBUG", &c.Debug)
}

func (c *Config) parseFlags(args []string) error {
	fs := flag.NewFlagSet("jimmystore", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&c.Addr, "addr", c.Addr, "")
	fs.StringVar(&c.Addr, "a", c.Addr, "")
	fs.StringVar(&c.LogFile, "log", c.LogFile, "")
	fs.StringVar(&c.LogFile, "l", c.LogFile, "")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "")
	fs.StringVar(&c.DBBackend, "db-backend", c.DBBackend, "")
	fs.StringVar(&c.SQLitePath, "db", c.SQLitePath, "")
	fs.StringVar(&c.SQLitePath, "d", c.SQLitePath, "")
	fs.StringVar(&c.MongoURL, "mongo-url", c.MongoURL, "")
	fs.StringVar(&c.ImageBackend, "image-backend", c.ImageBackend, "")
	fs.StringVar(&c.UploadsDir, "uploads", c.UploadsDir, "")
	fs.StringVar(&c.UploadsDir, "u", c.UploadsDir, "")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return nil
}

// Validate checks that the selected backends are known and configured.
func (c *Config) Validate() error {
	switch c.DBBackend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite backend requires a database path")
		}
	case BackendMongo:
		if c.MongoURL == "" || c.DBName == "" {
			return errors.New("mongo backend requires MONGO_URL and DB_NAME")
		}
	default:
		return fmt.Errorf("unknown database backend %q", c.DBBackend)
	}

	switch c.ImageBackend {
	case ImagesDisk:
		if c.UploadsDir == "" {
			return errors.New("disk image backend requires an uploads directory")
		}
	case ImagesMinIO:
		if c.MinIOEndpoint == "" || c.MinIOBucket == "" {
			return errors.New("minio image backend requires MINIO_ENDPOINT and MINIO_BUCKET")
		}
	default:
		return fmt.Errorf("unknown image backend %q", c.ImageBackend)
	}

	if c.AdminUser == "" {
		return errors.New("ADMIN_USER must not be empty")
	}
	if c.AdminPass == "" && c.AdminPassHash == "" {
		return errors.New("ADMIN_PASS or ADMIN_PASS_HASH must be set")
	}
	return nil
}

// Usage is the command-line help text.
const Usage = `Usage: jimmystore [flags]

Flags:
  -a, -addr <host:port>     listen address (default: :8000, env ADDR)
  -d, -db <path>            SQLite database path (default: jimmystore.sqlite3, env SQLITE_PATH)
  -db-backend <name>        sqlite or mongo (default: sqlite, env DB_BACKEND)
  -mongo-url <url>          MongoDB connection string (env MONGO_URL)
  -image-backend <name>     disk or minio (default: disk, env IMAGE_BACKEND)
  -u, -uploads <dir>        uploads directory for the disk backend (default: uploads, env UPLOADS_DIR)
  -l, -log <path>           log file path (default: stdout/stderr only, env LOG_FILE)
  -debug                    enable debug logging (env JIMMYSTORE_DEBUG)
  -h, -help                 show this help and exit

Admin credentials come from ADMIN_USER and ADMIN_PASS (or ADMIN_PASS_HASH, a
bcrypt hash). Variables may also be placed in a .env file.
`

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

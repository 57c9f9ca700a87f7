package common

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joseph-ayodele/arrivals-intake/constants"
)

// Config holds all application configuration
type Config struct {
	Transport TransportConfig
	Delivery  DeliveryConfig
	Intake    IntakeConfig
	Ledger    LedgerConfig
	Server    ServerConfig
	LogLevel  string
}

// TransportConfig holds remote directory settings
type TransportConfig struct {
	Kind           string // sftp | gcs | local
	Host           string
	Port           int
	Username       string
	Password       string
	KnownHostsFile string
	DialTimeout    time.Duration
	Bucket         string
	LocalRoot      string
	WatchedDir     string
}

// DeliveryConfig holds downstream API settings
type DeliveryConfig struct {
	LoginURL  string
	UploadURL string
	UserName  string
	Password  string
	SystemID  string
	Timeout   time.Duration
}

// IntakeConfig holds pipeline behaviour settings
type IntakeConfig struct {
	UploadedDir     string
	ErrorsDir       string
	Suffixes        []string
	Collision       string // fail | overwrite
	PollInterval    time.Duration
	ReauthEachCycle bool
}

// LedgerConfig selects where the dedup set lives
type LedgerConfig struct {
	Driver string // memory | sqlite | postgres
	DSN    string
}

// ServerConfig holds the trigger surface settings
type ServerConfig struct {
	HTTPAddr  string
	GRPCAddr  string
	Autostart bool
}

const (
	TransportSFTP  = "sftp"
	TransportGCS   = "gcs"
	TransportLocal = "local"

	LedgerMemory   = "memory"
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"

	CollisionFail      = "fail"
	CollisionOverwrite = "overwrite"
)

// LoadConfig loads configuration from the environment, optionally layered over
// an arrivals.yaml found in configPath.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("arrivals")
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	setDefaults(v)

	if configPath != "" {
		v.AddConfigPath(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return &Config{
		Transport: TransportConfig{
			Kind:           strings.ToLower(v.GetString("transport")),
			Host:           v.GetString("host"),
			Port:           v.GetInt("port"),
			Username:       v.GetString("sftp_username"),
			Password:       v.GetString("password"),
			KnownHostsFile: v.GetString("sftp_known_hosts"),
			DialTimeout:    v.GetDuration("sftp_dial_timeout"),
			Bucket:         v.GetString("gcs_bucket"),
			LocalRoot:      v.GetString("local_root"),
			WatchedDir:     strings.TrimSpace(v.GetString("sftp_dir")),
		},
		Delivery: DeliveryConfig{
			LoginURL:  v.GetString("login_url"),
			UploadURL: v.GetString("upload_url"),
			UserName:  v.GetString("login_username"),
			Password:  v.GetString("login_password"),
			SystemID:  v.GetString("system_id"),
			Timeout:   v.GetDuration("http_timeout"),
		},
		Intake: IntakeConfig{
			UploadedDir:     v.GetString("uploaded_dir"),
			ErrorsDir:       v.GetString("errors_dir"),
			Suffixes:        splitSuffixes(v.GetString("file_suffixes")),
			Collision:       strings.ToLower(v.GetString("move_collision")),
			PollInterval:    v.GetDuration("poll_interval"),
			ReauthEachCycle: v.GetBool("reauth_each_cycle"),
		},
		Ledger: LedgerConfig{
			Driver: strings.ToLower(v.GetString("ledger_driver")),
			DSN:    v.GetString("ledger_dsn"),
		},
		Server: ServerConfig{
			HTTPAddr:  v.GetString("http_addr"),
			GRPCAddr:  v.GetString("grpc_addr"),
			Autostart: v.GetBool("autostart"),
		},
		LogLevel: v.GetString("log_level"),
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transport", TransportSFTP)
	v.SetDefault("port", 22)
	v.SetDefault("sftp_dial_timeout", 15*time.Second)
	v.SetDefault("local_root", ".")
	v.SetDefault("uploaded_dir", constants.DefaultUploadedDir)
	v.SetDefault("errors_dir", constants.DefaultErrorsDir)
	v.SetDefault("file_suffixes", strings.Join(constants.DefaultSuffixes, ","))
	v.SetDefault("move_collision", CollisionFail)
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("poll_interval", 60*time.Second)
	v.SetDefault("reauth_each_cycle", false)
	v.SetDefault("ledger_driver", LedgerMemory)
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("grpc_addr", "")
	v.SetDefault("autostart", true)
	v.SetDefault("log_level", "info")
}

func splitSuffixes(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := constants.NormalizeSuffix(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	var missing []string
	require := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}

	switch c.Transport.Kind {
	case TransportSFTP:
		require("HOST", c.Transport.Host)
		require("SFTP_USERNAME", c.Transport.Username)
		require("PASSWORD", c.Transport.Password)
	case TransportGCS:
		require("GCS_BUCKET", c.Transport.Bucket)
	case TransportLocal:
		require("LOCAL_ROOT", c.Transport.LocalRoot)
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown TRANSPORT %q", c.Transport.Kind), ErrInvalidInput)
	}
	require("SFTP_DIR", c.Transport.WatchedDir)
	require("LOGIN_USERNAME", c.Delivery.UserName)
	require("LOGIN_PASSWORD", c.Delivery.Password)
	require("SYSTEM_ID", c.Delivery.SystemID)
	require("LOGIN_URL", c.Delivery.LoginURL)
	require("UPLOAD_URL", c.Delivery.UploadURL)

	if len(missing) > 0 {
		return NewAppError("CONFIG_ERROR", strings.Join(missing, ", ")+" required", ErrInvalidInput)
	}

	if len(c.Intake.Suffixes) == 0 {
		return NewAppError("CONFIG_ERROR", "FILE_SUFFIXES must name at least one suffix", ErrInvalidInput)
	}
	if c.Intake.Collision != CollisionFail && c.Intake.Collision != CollisionOverwrite {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("MOVE_COLLISION must be %q or %q", CollisionFail, CollisionOverwrite), ErrInvalidInput)
	}
	if c.Intake.PollInterval <= 0 {
		return NewAppError("CONFIG_ERROR", "POLL_INTERVAL must be positive", ErrInvalidInput)
	}
	if c.Intake.UploadedDir == c.Intake.ErrorsDir {
		return NewAppError("CONFIG_ERROR", "UPLOADED_DIR and ERRORS_DIR must differ", ErrInvalidInput)
	}

	switch c.Ledger.Driver {
	case LedgerMemory:
	case LedgerSQLite, LedgerPostgres:
		require("LEDGER_DSN", c.Ledger.DSN)
		if len(missing) > 0 {
			return NewAppError("CONFIG_ERROR", "LEDGER_DSN required for ledger driver "+c.Ledger.Driver, ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown LEDGER_DRIVER %q", c.Ledger.Driver), ErrInvalidInput)
	}
	return nil
}

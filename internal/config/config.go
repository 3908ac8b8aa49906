package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates all service settings.
type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
}

// ServiceConfig identifies the running service instance.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
	LogLevel    string `mapstructure:"log_level"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	Database      string        `mapstructure:"database"`
	SSLMode       string        `mapstructure:"ssl_mode"`
	MaxConns      int32         `mapstructure:"max_conns"`
	MinConns      int32         `mapstructure:"min_conns"`
	MigrationsURL string        `mapstructure:"migrations_url"`
	ConnTimeout   time.Duration `mapstructure:"conn_timeout"`
}

// DSN returns the pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// NATSConfig holds event bus settings. An empty URL disables publishing.
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// WorkflowConfig carries the department-assignment and SLA inputs consumed
// by the approval engine and the queue projection. SLA targets vary by
// department, so none of this is hardcoded in the engine.
type WorkflowConfig struct {
	// CategoryDepartments maps an incentive category to the department that
	// must review deals carrying it.
	CategoryDepartments map[string]string `mapstructure:"category_departments"`
	// SLATargetHours maps a department to its decision SLA in hours.
	SLATargetHours map[string]int `mapstructure:"sla_target_hours"`
	// DefaultSLAHours applies to departments without an explicit target.
	DefaultSLAHours int `mapstructure:"default_sla_hours"`
	// WarningFraction is the tail fraction of the SLA window classified as
	// "warning" (e.g. 0.25 = the last quarter of the allotted time).
	WarningFraction float64 `mapstructure:"warning_fraction"`
	// CriticalFraction is the tail fraction classified as "critical".
	CriticalFraction float64 `mapstructure:"critical_fraction"`
	// DepartmentCapacity maps a department to its nominal concurrent review
	// capacity, used for load percentages.
	DepartmentCapacity map[string]int `mapstructure:"department_capacity"`
	// DefaultCapacity applies to departments without an explicit capacity.
	DefaultCapacity int `mapstructure:"default_capacity"`
	// ProcessingTimeWindow is the trailing window over which average
	// processing time is computed.
	ProcessingTimeWindow time.Duration `mapstructure:"processing_time_window"`
}

// SLAFor returns the SLA target duration for a department.
func (w WorkflowConfig) SLAFor(department string) time.Duration {
	hours := w.DefaultSLAHours
	if h, ok := w.SLATargetHours[department]; ok {
		hours = h
	}
	return time.Duration(hours) * time.Hour
}

// CapacityFor returns the nominal review capacity for a department.
func (w WorkflowConfig) CapacityFor(department string) int {
	if c, ok := w.DepartmentCapacity[department]; ok && c > 0 {
		return c
	}
	return w.DefaultCapacity
}

// Load reads configuration from config.yaml (if present) and the
// environment. Environment variables use the DEALS_ prefix with underscores,
// e.g. DEALS_DATABASE_HOST.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/deal-approvals")

	v.SetEnvPrefix("DEALS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "be-deal-approvals")
	v.SetDefault("service.environment", "development")
	v.SetDefault("service.version", "dev")
	v.SetDefault("service.log_level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.database", "deal_approvals")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.migrations_url", "file://migrations")
	v.SetDefault("database.conn_timeout", 5*time.Second)

	v.SetDefault("nats.url", "")

	v.SetDefault("workflow.category_departments", map[string]string{
		"marketing_support":  "marketing",
		"creative_services":  "creative",
		"research_data":      "research",
		"event_sponsorship":  "events",
		"content_production": "content",
		"tech_integration":   "technology",
	})
	v.SetDefault("workflow.sla_target_hours", map[string]int{
		"finance": 24,
		"trading": 24,
	})
	v.SetDefault("workflow.default_sla_hours", 48)
	v.SetDefault("workflow.warning_fraction", 0.25)
	v.SetDefault("workflow.critical_fraction", 0.05)
	v.SetDefault("workflow.department_capacity", map[string]int{})
	v.SetDefault("workflow.default_capacity", 10)
	v.SetDefault("workflow.processing_time_window", 30*24*time.Hour)
}

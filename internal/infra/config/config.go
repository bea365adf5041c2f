package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"   validate:"required"`
	Chain      ChainConfig      `mapstructure:"chain"`
	Redaction  RedactionConfig  `mapstructure:"redaction"`
	Validation ValidationConfig `mapstructure:"validation"`
	Detection  DetectionConfig  `mapstructure:"detection"`

	ServiceVersion string
	BuildCommit    string
}

type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

type ChainConfig struct {
	MaxUserAgentLength int `mapstructure:"max_user_agent_length" validate:"gte=16"`
	SchemaVersion      int `mapstructure:"schema_version"        validate:"gte=1"`
}

type RedactionConfig struct {
	MaxDepth  int      `mapstructure:"max_depth" validate:"gte=1,lte=64"`
	ExtraKeys []string `mapstructure:"extra_keys"`
}

type ValidationConfig struct {
	SegmentSize  int           `mapstructure:"segment_size" validate:"gte=1"`
	Parallelism  int           `mapstructure:"parallelism"  validate:"gte=1,lte=64"`
	GapThreshold time.Duration `mapstructure:"gap_threshold"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type DetectionConfig struct {
	BaselinePeriodDays        int           `mapstructure:"baseline_period_days" validate:"gte=1"`
	WindowHours               int           `mapstructure:"window_hours"         validate:"gte=1"`
	VolumeZThreshold          float64       `mapstructure:"volume_z_threshold"`
	OffHours                  []int         `mapstructure:"off_hours"`
	UnusualTimeMinEvents      int           `mapstructure:"unusual_time_min_events"`
	DriftNewResourceThreshold int           `mapstructure:"drift_new_resource_threshold"`
	SuspiciousSequences       [][]string    `mapstructure:"suspicious_sequences"`
	VelocityWindow            time.Duration `mapstructure:"velocity_window"`
	VelocityThreshold         int           `mapstructure:"velocity_threshold"`
	PrivilegeActions          []string      `mapstructure:"privilege_actions"`
	ExfiltrationActions       []string      `mapstructure:"exfiltration_actions"`
	ExfiltrationThreshold     int           `mapstructure:"exfiltration_threshold"`
	FailedLoginActions        []string      `mapstructure:"failed_login_actions"`
	BruteForceThreshold       int           `mapstructure:"brute_force_threshold"`
	BruteForceWindow          time.Duration `mapstructure:"brute_force_window"`
	Timeout                   time.Duration `mapstructure:"timeout"`
}

func Load(path string) (*Config, error) {
	vip := viper.New()
	if path != "" {
		vip.SetConfigFile(path)
	} else {
		vip.SetConfigName("config")
		vip.AddConfigPath("./configs")
		vip.AddConfigPath(".")
	}

	vip.SetConfigType("yaml")
	vip.SetEnvPrefix("VERITRAIL")
	vip.AutomaticEnv()
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(vip)

	if err := vip.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg.ServiceVersion = getenv("VERITRAIL_SERVICE_VERSION", "unknown")
	cfg.BuildCommit = getenv("VERITRAIL_BUILD_COMMIT", "unknown")

	return &cfg, nil
}

func setDefaults(vip *viper.Viper) {
	vip.SetDefault("chain.max_user_agent_length", 256)
	vip.SetDefault("chain.schema_version", 1)

	vip.SetDefault("redaction.max_depth", 10)

	vip.SetDefault("validation.segment_size", 1000)
	vip.SetDefault("validation.parallelism", 4)
	vip.SetDefault("validation.gap_threshold", time.Hour)
	vip.SetDefault("validation.timeout", 5*time.Minute)

	vip.SetDefault("detection.baseline_period_days", 30)
	vip.SetDefault("detection.window_hours", 24)
	vip.SetDefault("detection.volume_z_threshold", 3.0)
	vip.SetDefault("detection.off_hours", []int{0, 1, 2, 3, 4, 5})
	vip.SetDefault("detection.unusual_time_min_events", 3)
	vip.SetDefault("detection.drift_new_resource_threshold", 5)
	vip.SetDefault("detection.velocity_window", time.Minute)
	vip.SetDefault("detection.velocity_threshold", 10)
	vip.SetDefault("detection.privilege_actions", []string{
		"role.admin.assign", "role.admin.grant", "permission.elevate", "access.override",
	})
	vip.SetDefault("detection.exfiltration_actions", []string{
		"data.export", "data.bulk_download", "report.export", "backup.download",
	})
	vip.SetDefault("detection.exfiltration_threshold", 3)
	vip.SetDefault("detection.failed_login_actions", []string{"auth.login.failed"})
	vip.SetDefault("detection.brute_force_threshold", 5)
	vip.SetDefault("detection.brute_force_window", 300*time.Second)
	vip.SetDefault("detection.timeout", 2*time.Minute)
}

// getenv returns an environment variable or a default value.
func getenv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

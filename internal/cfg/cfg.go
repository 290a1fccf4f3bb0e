// Package cfg loads the scoring service configuration from a YAML file, the
// process environment and an optional .env file.
package cfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"loanscore/internal/common"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	Port            int
	DatasetPath     string
	DatasetSource   string
	DataPath        string
	ModelPath       string
	ModelID         string
	ImportanceType  string
	ThresholdPolicy string
	Threshold       float64
	ThresholdFile   string
	LogLevel        string
	LogFormat       string
	RequestTimeout  time.Duration
	AllowedOrigins  []string
}

type ConfigFile struct {
	Server struct {
		Port           int      `yaml:"port"`
		RequestTimeout string   `yaml:"requestTimeout"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`

	Dataset struct {
		Path     string `yaml:"path"`
		Source   string `yaml:"source"`
		DataPath string `yaml:"dataPath"`
	} `yaml:"dataset"`

	Model struct {
		Path           string `yaml:"path"`
		ID             string `yaml:"id"`
		ImportanceType string `yaml:"importanceType"`
	} `yaml:"model"`

	Threshold struct {
		Policy string   `yaml:"policy"`
		Value  *float64 `yaml:"value"`
		File   string   `yaml:"file"`
	} `yaml:"threshold"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

func Load() (Settings, error) {
	if err := loadDotEnv(); err != nil {
		return Settings{}, err
	}

	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

// loadDotEnv reads ENV_FILE (or ./.env) into the environment. Variables that
// are already set win over the file.
func loadDotEnv() error {
	path := getEnvOrDefault(common.EnvEnvFile, ".env")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	requestTimeout, err := time.ParseDuration(config.Server.RequestTimeout)
	if err != nil {
		requestTimeout = 30 * time.Second
	}

	threshold := common.DefaultThreshold
	if config.Threshold.Value != nil {
		threshold = *config.Threshold.Value
	}

	settings := Settings{
		Port:            getIntFromEnvOrConfig(common.EnvPort, config.Server.Port, common.DefaultPort),
		DatasetPath:     getEnvOrDefault(common.EnvDatasetPath, orDefault(config.Dataset.Path, common.DefaultDatasetPath)),
		DatasetSource:   getEnvOrDefault(common.EnvDatasetSource, orDefault(config.Dataset.Source, common.DefaultDatasetSource)),
		DataPath:        getEnvOrDefault(common.EnvDataPath, config.Dataset.DataPath),
		ModelPath:       getEnvOrDefault(common.EnvModelPath, orDefault(config.Model.Path, common.DefaultModelPath)),
		ModelID:         getEnvOrDefault(common.EnvModelID, config.Model.ID),
		ImportanceType:  getEnvOrDefault(common.EnvImportanceType, orDefault(config.Model.ImportanceType, common.DefaultImportanceType)),
		ThresholdPolicy: getEnvOrDefault(common.EnvThresholdPolicy, orDefault(config.Threshold.Policy, common.DefaultThresholdPolicy)),
		Threshold:       getFloatOrDefault(common.EnvThreshold, threshold),
		ThresholdFile:   getEnvOrDefault(common.EnvThresholdFile, orDefault(config.Threshold.File, common.DefaultThresholdFile)),
		LogLevel:        getEnvOrDefault(common.EnvLogLevel, orDefault(config.Logging.Level, common.DefaultLogLevel)),
		LogFormat:       getEnvOrDefault(common.EnvLogFormat, orDefault(config.Logging.Format, common.DefaultLogFormat)),
		RequestTimeout:  getDurationOrDefault(common.EnvRequestTimeout, requestTimeout),
		AllowedOrigins:  getListFromEnvOrConfig(common.EnvAllowedOrigins, config.Server.AllowedOrigins),
	}
	settings.fillModelID()

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		Port:            getIntOrDefault(common.EnvPort, common.DefaultPort),
		DatasetPath:     getEnvOrDefault(common.EnvDatasetPath, common.DefaultDatasetPath),
		DatasetSource:   getEnvOrDefault(common.EnvDatasetSource, common.DefaultDatasetSource),
		DataPath:        os.Getenv(common.EnvDataPath), // optional
		ModelPath:       getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		ModelID:         os.Getenv(common.EnvModelID),
		ImportanceType:  getEnvOrDefault(common.EnvImportanceType, common.DefaultImportanceType),
		ThresholdPolicy: getEnvOrDefault(common.EnvThresholdPolicy, common.DefaultThresholdPolicy),
		Threshold:       getFloatOrDefault(common.EnvThreshold, common.DefaultThreshold),
		ThresholdFile:   getEnvOrDefault(common.EnvThresholdFile, common.DefaultThresholdFile),
		LogLevel:        getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat:       getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat),
		RequestTimeout:  getDurationOrDefault(common.EnvRequestTimeout, 30*time.Second),
		AllowedOrigins:  splitOrDefault(os.Getenv(common.EnvAllowedOrigins), []string{"*"}),
	}
	settings.fillModelID()

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// fillModelID defaults the model identity to the model file name, which is
// how threshold mapping files key their entries.
func (s *Settings) fillModelID() {
	if s.ModelID == "" && s.ModelPath != "" {
		s.ModelID = filepath.Base(s.ModelPath)
	}
}

// DBPath returns the bolt snapshot file inside DataPath.
func (s *Settings) DBPath() string {
	return filepath.Join(s.DataPath, common.DefaultDBFileName)
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orDefault(v, defaultValue string) string {
	if v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getListFromEnvOrConfig(key string, configValue []string) []string {
	if env := os.Getenv(key); env != "" {
		return splitOrDefault(env, nil)
	}
	if len(configValue) > 0 {
		return configValue
	}
	return []string{"*"}
}

// validateSettings performs validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.Port < common.MinPort || settings.Port > common.MaxPort {
		return fmt.Errorf("port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.Port)
	}

	if settings.ModelPath == "" {
		return fmt.Errorf(common.ErrMsgModelPathRequired)
	}

	switch settings.DatasetSource {
	case common.DatasetSourceCSV:
		if settings.DatasetPath == "" {
			return fmt.Errorf(common.ErrMsgDatasetPathRequired)
		}
	case common.DatasetSourceBolt:
		if settings.DataPath == "" {
			return fmt.Errorf(common.ErrMsgDataPathRequired)
		}
	default:
		return fmt.Errorf("dataset source must be %q or %q, got %q",
			common.DatasetSourceCSV, common.DatasetSourceBolt, settings.DatasetSource)
	}

	switch settings.ImportanceType {
	case common.ImportanceWeight, common.ImportanceGain, common.ImportanceTotalGain:
	default:
		return fmt.Errorf("importance type must be one of weight, gain, total_gain, got %q", settings.ImportanceType)
	}

	switch settings.ThresholdPolicy {
	case common.ThresholdPolicyFixed:
		if settings.Threshold < common.MinThreshold || settings.Threshold > common.MaxThreshold {
			return fmt.Errorf("threshold must be between 0 and 1, got %f", settings.Threshold)
		}
	case common.ThresholdPolicyLookup:
		if settings.ThresholdFile == "" {
			return fmt.Errorf(common.ErrMsgThresholdFileReq)
		}
	default:
		return fmt.Errorf("threshold policy must be %q or %q, got %q",
			common.ThresholdPolicyFixed, common.ThresholdPolicyLookup, settings.ThresholdPolicy)
	}

	if settings.RequestTimeout < common.MinRequestTimeout*time.Millisecond || settings.RequestTimeout > 5*time.Minute {
		return fmt.Errorf("request timeout must be between 100ms and 5m, got %v", settings.RequestTimeout)
	}

	return nil
}

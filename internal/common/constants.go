package common

// Environment variable keys
const (
	EnvConfigFile      = "CONFIG_FILE"
	EnvEnvFile         = "ENV_FILE"
	EnvPort            = "PORT"
	EnvDatasetPath     = "DATASET_PATH"
	EnvDatasetSource   = "DATASET_SOURCE"
	EnvDataPath        = "DATA_PATH"
	EnvModelPath       = "MODEL_PATH"
	EnvModelID         = "MODEL_ID"
	EnvImportanceType  = "IMPORTANCE_TYPE"
	EnvThresholdPolicy = "THRESHOLD_POLICY"
	EnvThreshold       = "THRESHOLD"
	EnvThresholdFile   = "THRESHOLD_FILE"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogFormat       = "LOG_FORMAT"
	EnvRequestTimeout  = "REQUEST_TIMEOUT"
	EnvAllowedOrigins  = "ALLOWED_ORIGINS"
)

// Dataset sources
const (
	DatasetSourceCSV  = "csv"
	DatasetSourceBolt = "bolt"
)

// Threshold policies
const (
	ThresholdPolicyFixed  = "fixed"
	ThresholdPolicyLookup = "lookup"
)

// Importance types for tree ensembles
const (
	ImportanceWeight    = "weight"
	ImportanceGain      = "gain"
	ImportanceTotalGain = "total_gain"
)

// Configuration defaults
const (
	DefaultPort            = 5000
	DefaultDatasetPath     = "data/X_test.csv"
	DefaultDatasetSource   = DatasetSourceCSV
	DefaultModelPath       = "models/classifier.json"
	DefaultImportanceType  = ImportanceGain
	DefaultThresholdPolicy = ThresholdPolicyFixed
	DefaultThreshold       = 0.51
	DefaultThresholdFile   = "acceptance.txt"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultDisplayCount    = 10
	DefaultDBFileName      = "loanscore.db"
)

// Validation constants
const (
	MinPort           = 1024
	MaxPort           = 65535
	MinThreshold      = 0.0
	MaxThreshold      = 1.0
	MinRequestTimeout = 100 // milliseconds
)

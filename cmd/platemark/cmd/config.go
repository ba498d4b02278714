package cmd

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/platemark/platemark/pkg/logging"
)

// Config holds settings loaded from config file, environment variables and
// .env files. Command-line flags override all of it.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	Output  string

	// Annotation defaults
	InputDir  string
	OutputDir string
	Strategy  string
	Model     string
	Workers   int
	CAM       string
	// ParamsFile points at a thickness-vote parameter YAML.
	ParamsFile string
	// ExamplesFile points at a few-shot example pack YAML.
	ExamplesFile string

	ConfigFile string
}

// LoadConfig loads configuration in order of precedence: flags (applied by
// cobra afterwards), environment, .env files, ~/.platemark.yaml, defaults.
func LoadConfig(configFile string) (*Config, error) {
	loadEnvFiles()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	bindAPIKeys()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.AddConfigPath(".")
			viper.SetConfigType("yaml")
			viper.SetConfigName(".platemark")
		}
	}

	// Missing config file is fine; a malformed one is not silently ignored.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configFile != "" {
			return nil, err
		}
	}

	cfg := &Config{
		Verbose: viper.GetBool("verbose"),
		Quiet:   viper.GetBool("quiet"),
		Output:  viper.GetString("output"),

		InputDir:     viper.GetString("input"),
		OutputDir:    viper.GetString("output_dir"),
		Strategy:     viper.GetString("strategy"),
		Model:        viper.GetString("model"),
		Workers:      viper.GetInt("workers"),
		CAM:          viper.GetString("cam"),
		ParamsFile:   viper.GetString("params"),
		ExamplesFile: viper.GetString("examples"),

		ConfigFile: viper.ConfigFileUsed(),
	}
	return cfg, nil
}

// loadEnvFiles loads environment variables from .env files. .env.local
// overrides .env.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}

// bindAPIKeys explicitly binds the LLM provider keys so .env values reach
// viper lookups.
func bindAPIKeys() {
	for _, key := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		if err := viper.BindEnv(key); err != nil {
			logging.Warn().Str("key", key).Err(err).Msg("Failed to bind environment variable")
		}
	}
}

// Package config loads experiment files and holds the settings derived from
// the command line.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spboyer/sqleval/internal/validation"
	"gopkg.in/yaml.v3"
)

// Default values for experiment configuration. New() references them and no
// other code should duplicate them.
const (
	DefaultExperimentName = "experiment"
	DefaultOutputDir      = "results"

	DefaultEngine    = EngineLLM
	DefaultProvider  = "openai"
	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 1024
	DefaultTimeoutMs = 30000
	DefaultMaxSteps  = 4

	DefaultPreviewRows      = 20
	DefaultPreviewCellChars = 200

	DefaultTurnsDB = "data/normalized/turns.db"
	DefaultDBRoot  = "."

	DefaultOnError = OnErrorAbort
	DefaultWorkers = 1
)

// Oracle engines.
const (
	EngineLLM      = "llm"
	EngineCopilot  = "copilot"
	EngineScripted = "scripted"
)

// Hard failure policies.
const (
	OnErrorAbort = "abort"
	OnErrorSkip  = "skip"
)

const redacted = "***"

type AgentConfig struct {
	Engine           string `yaml:"engine" json:"engine"`
	Provider         string `yaml:"provider,omitempty" json:"provider,omitempty"`
	Model            string `yaml:"model" json:"model"`
	APIKeyEnv        string `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`
	BaseURL          string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	MaxTokens        int    `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Script           string `yaml:"script,omitempty" json:"script,omitempty"`
	TimeoutMs        int    `yaml:"timeout_ms" json:"timeout_ms"`
	MaxSteps         int    `yaml:"max_steps" json:"max_steps"`
	PreviewRows      int    `yaml:"preview_rows" json:"preview_rows"`
	PreviewCellChars int    `yaml:"preview_cell_chars" json:"preview_cell_chars"`

	// LegacyTimeoutMs is the older spelling of timeout_ms; it applies only
	// when timeout_ms is absent.
	LegacyTimeoutMs *int `yaml:"msx_ms,omitempty" json:"-"`
}

type DataConfig struct {
	TurnsDB      string `yaml:"turns_db" json:"turns_db"`
	DBRoot       string `yaml:"db_root" json:"db_root"`
	Source       string `yaml:"source,omitempty" json:"source,omitempty"`
	Split        string `yaml:"split,omitempty" json:"split,omitempty"`
	Limit        int    `yaml:"limit,omitempty" json:"limit,omitempty"`
	MinTurnIndex *int   `yaml:"min_turn_index,omitempty" json:"min_turn_index,omitempty"`
}

type EvalConfig struct {
	CompareOrderInsensitive bool    `yaml:"compare_order_insensitive" json:"compare_order_insensitive"`
	OnError                 string  `yaml:"on_error" json:"on_error"`
	MinAccuracy             float64 `yaml:"min_accuracy,omitempty" json:"min_accuracy,omitempty"`
}

type RunSettings struct {
	Workers     int  `yaml:"workers" json:"workers"`
	Transcripts bool `yaml:"transcripts,omitempty" json:"transcripts,omitempty"`
	JUnit       bool `yaml:"junit,omitempty" json:"junit,omitempty"`
	Archive     bool `yaml:"archive,omitempty" json:"archive,omitempty"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Bucket          string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Region          string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Prefix          string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty"`
	SessionToken    string `yaml:"session_token,omitempty" json:"session_token,omitempty"`
	UsePathStyle    bool   `yaml:"use_path_style,omitempty" json:"use_path_style,omitempty"`
}

type GCSConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Bucket          string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Prefix          string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty" json:"credentials_file,omitempty"`
}

type AzureConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	AccountURL string `yaml:"account_url,omitempty" json:"account_url,omitempty"`
	Container  string `yaml:"container,omitempty" json:"container,omitempty"`
	Prefix     string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

type UploadConfig struct {
	S3    S3Config    `yaml:"s3,omitempty" json:"s3"`
	GCS   GCSConfig   `yaml:"gcs,omitempty" json:"gcs"`
	Azure AzureConfig `yaml:"azure,omitempty" json:"azure"`
}

// Experiment is one experiment file with defaults applied.
type Experiment struct {
	ExperimentName string       `yaml:"experiment_name" json:"experiment_name"`
	OutputDir      string       `yaml:"output_dir" json:"output_dir"`
	Agent          AgentConfig  `yaml:"agent" json:"agent"`
	Data           DataConfig   `yaml:"data" json:"data"`
	Eval           EvalConfig   `yaml:"eval" json:"eval"`
	Run            RunSettings  `yaml:"run" json:"run"`
	Upload         UploadConfig `yaml:"upload,omitempty" json:"upload"`
}

// New returns an Experiment with every default populated.
func New() *Experiment {
	return &Experiment{
		ExperimentName: DefaultExperimentName,
		OutputDir:      DefaultOutputDir,
		Agent: AgentConfig{
			Engine:           DefaultEngine,
			Provider:         DefaultProvider,
			Model:            DefaultModel,
			MaxTokens:        DefaultMaxTokens,
			TimeoutMs:        DefaultTimeoutMs,
			MaxSteps:         DefaultMaxSteps,
			PreviewRows:      DefaultPreviewRows,
			PreviewCellChars: DefaultPreviewCellChars,
		},
		Data: DataConfig{
			TurnsDB: DefaultTurnsDB,
			DBRoot:  DefaultDBRoot,
		},
		Eval: EvalConfig{
			CompareOrderInsensitive: true,
			OnError:                 DefaultOnError,
		},
		Run: RunSettings{
			Workers: DefaultWorkers,
		},
	}
}

// Load reads, schema-checks and validates an experiment file.
func Load(path string) (*Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading experiment file: %w", err)
	}
	return Parse(data)
}

// Parse is Load for in-memory YAML.
func Parse(data []byte) (*Experiment, error) {
	if errs := validation.ValidateExperimentBytes(data); len(errs) > 0 {
		return nil, fmt.Errorf("invalid experiment file:\n  %s", strings.Join(errs, "\n  "))
	}

	cfg := New()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing experiment file: %w", err)
	}

	var explicit struct {
		Agent struct {
			TimeoutMs *int `yaml:"timeout_ms"`
		} `yaml:"agent"`
	}
	if err := yaml.Unmarshal(data, &explicit); err != nil {
		return nil, fmt.Errorf("parsing experiment file: %w", err)
	}
	if explicit.Agent.TimeoutMs == nil && cfg.Agent.LegacyTimeoutMs != nil {
		cfg.Agent.TimeoutMs = *cfg.Agent.LegacyTimeoutMs
	}
	cfg.Agent.LegacyTimeoutMs = nil

	cfg.ExperimentName = strings.TrimSpace(cfg.ExperimentName)
	if cfg.ExperimentName == "" {
		cfg.ExperimentName = DefaultExperimentName
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the cross-field rules the schema cannot express.
func (e *Experiment) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch e.Agent.Engine {
	case EngineLLM:
		if e.Agent.Provider == "" {
			add("agent.provider is required for engine %q", EngineLLM)
		}
		if e.Agent.Model == "" {
			add("agent.model is required for engine %q", EngineLLM)
		}
	case EngineScripted:
		if e.Agent.Script == "" {
			add("agent.script is required for engine %q", EngineScripted)
		}
	case EngineCopilot:
	default:
		add("unknown agent.engine %q", e.Agent.Engine)
	}
	if e.Agent.MaxSteps < 0 {
		add("agent.max_steps must be >= 0")
	}
	if e.Data.TurnsDB == "" {
		add("data.turns_db is required")
	}
	if e.Eval.OnError != OnErrorAbort && e.Eval.OnError != OnErrorSkip {
		add("eval.on_error must be %q or %q", OnErrorAbort, OnErrorSkip)
	}
	if e.Eval.MinAccuracy < 0 || e.Eval.MinAccuracy > 1 {
		add("eval.min_accuracy must be within [0, 1]")
	}
	if e.Run.Workers < 1 {
		add("run.workers must be >= 1")
	}
	if e.Upload.S3.Enabled && e.Upload.S3.Bucket == "" {
		add("upload.s3.bucket is required when s3 upload is enabled")
	}
	if e.Upload.GCS.Enabled && e.Upload.GCS.Bucket == "" {
		add("upload.gcs.bucket is required when gcs upload is enabled")
	}
	if e.Upload.Azure.Enabled && (e.Upload.Azure.AccountURL == "" || e.Upload.Azure.Container == "") {
		add("upload.azure.account_url and upload.azure.container are required when azure upload is enabled")
	}
	return errors.Join(errs...)
}

// Timeout is the per-execution budget; zero means unlimited.
func (e *Experiment) Timeout() time.Duration {
	if e.Agent.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(e.Agent.TimeoutMs) * time.Millisecond
}

// APIKey resolves the provider key from the environment.
func (e *Experiment) APIKey(defaultEnv func(provider string) string) string {
	env := e.Agent.APIKeyEnv
	if env == "" && defaultEnv != nil {
		env = defaultEnv(e.Agent.Provider)
	}
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}

// Redacted returns a copy safe to persist: upload credentials are masked.
func (e *Experiment) Redacted() *Experiment {
	c := *e
	if c.Upload.S3.SecretAccessKey != "" {
		c.Upload.S3.SecretAccessKey = redacted
	}
	if c.Upload.S3.SessionToken != "" {
		c.Upload.S3.SessionToken = redacted
	}
	if c.Upload.S3.AccessKeyID != "" {
		c.Upload.S3.AccessKeyID = redacted
	}
	return &c
}

// AsMap renders the redacted configuration as a generic map for results.json.
func (e *Experiment) AsMap() (map[string]any, error) {
	data, err := json.Marshal(e.Redacted())
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// WriteYAML writes the redacted, resolved configuration to path.
func (e *Experiment) WriteYAML(path string) error {
	data, err := yaml.Marshal(e.Redacted())
	if err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

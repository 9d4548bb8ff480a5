package config

import (
	"path/filepath"
)

// RunConfig is an experiment plus settings taken from the command line.
// Overrides are applied to a private copy of the experiment so the persisted
// configuration reflects what actually ran.
type RunConfig struct {
	experiment *Experiment
	configPath string
	verbose    bool
	interpret  bool
}

type RunOption func(*RunConfig)

// NewRunConfig copies exp and applies opts to the copy.
func NewRunConfig(exp *Experiment, opts ...RunOption) *RunConfig {
	if exp == nil {
		exp = New()
	}
	c := *exp
	if exp.Data.MinTurnIndex != nil {
		v := *exp.Data.MinTurnIndex
		c.Data.MinTurnIndex = &v
	}
	cfg := &RunConfig{experiment: &c}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func WithConfigPath(path string) RunOption {
	return func(c *RunConfig) { c.configPath = path }
}

func WithVerbose(verbose bool) RunOption {
	return func(c *RunConfig) { c.verbose = verbose }
}

func WithInterpret(interpret bool) RunOption {
	return func(c *RunConfig) { c.interpret = interpret }
}

// WithOutputDir overrides output_dir; empty keeps the file's value.
func WithOutputDir(dir string) RunOption {
	return func(c *RunConfig) {
		if dir != "" {
			c.experiment.OutputDir = dir
		}
	}
}

// WithLimit overrides data.limit when n > 0.
func WithLimit(n int) RunOption {
	return func(c *RunConfig) {
		if n > 0 {
			c.experiment.Data.Limit = n
		}
	}
}

// WithWorkers overrides run.workers when n > 0.
func WithWorkers(n int) RunOption {
	return func(c *RunConfig) {
		if n > 0 {
			c.experiment.Run.Workers = n
		}
	}
}

func WithModel(model string) RunOption {
	return func(c *RunConfig) {
		if model != "" {
			c.experiment.Agent.Model = model
		}
	}
}

// WithTranscripts turns transcript files on; false leaves the file's value.
func WithTranscripts(on bool) RunOption {
	return func(c *RunConfig) {
		if on {
			c.experiment.Run.Transcripts = true
		}
	}
}

func WithJUnit(on bool) RunOption {
	return func(c *RunConfig) {
		if on {
			c.experiment.Run.JUnit = true
		}
	}
}

func (c *RunConfig) Experiment() *Experiment { return c.experiment }
func (c *RunConfig) ConfigPath() string      { return c.configPath }
func (c *RunConfig) Verbose() bool           { return c.verbose }
func (c *RunConfig) Interpret() bool         { return c.interpret }

// RunDir is <output_dir>/<experiment_name>.
func (c *RunConfig) RunDir() string {
	return filepath.Join(c.experiment.OutputDir, c.experiment.ExperimentName)
}

// TranscriptDir is empty unless transcripts are enabled.
func (c *RunConfig) TranscriptDir() string {
	if !c.experiment.Run.Transcripts {
		return ""
	}
	return filepath.Join(c.RunDir(), "transcripts")
}

// Package config loads the YAML settings shared by the commands.
package config

import (
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brensch/neatsnake/evolve"
	"github.com/brensch/neatsnake/game"
	"github.com/brensch/neatsnake/harness"
	"github.com/brensch/neatsnake/logging"
	"github.com/brensch/neatsnake/policy"
	"github.com/brensch/neatsnake/rules"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Env        EnvConfig        `yaml:"env"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Evolution  EvolutionConfig  `yaml:"evolution"`
	Onnx       OnnxConfig       `yaml:"onnx"`
	Output     OutputConfig     `yaml:"output"`
	Viewer     ViewerConfig     `yaml:"viewer"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type EnvConfig struct {
	Size int `yaml:"size"`
}

type ScoringConfig struct {
	SurvivalBonus float64 `yaml:"survival_bonus"`
	FoodBonus     float64 `yaml:"food_bonus"`
	DeathPenalty  float64 `yaml:"death_penalty"`
	MaxStagnation int     `yaml:"max_stagnation"`
}

type EvaluationConfig struct {
	Workers  int   `yaml:"workers"`
	Episodes int   `yaml:"episodes"`
	Seed     int64 `yaml:"seed"`
}

type EvolutionConfig struct {
	Population    int     `yaml:"population"`
	Generations   int     `yaml:"generations"`
	Hidden        int     `yaml:"hidden"`
	Elite         int     `yaml:"elite"`
	MutationRate  float64 `yaml:"mutation_rate"`
	MutationSigma float64 `yaml:"mutation_sigma"`
	Crossover     float64 `yaml:"crossover"` // chance a child has two parents
	Selector      string  `yaml:"selector"`  // tournament or elite
	Tournament    int     `yaml:"tournament"`
}

type OnnxConfig struct {
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	Sessions     int           `yaml:"sessions"`
	CUDA         bool          `yaml:"cuda"`
}

type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Ledger string `yaml:"ledger"`
	Best   string `yaml:"best"`
	Record bool   `yaml:"record"`
}

type ViewerConfig struct {
	Addr    string `yaml:"addr"`
	DataDir string `yaml:"data_dir"`
}

type LoggingConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Defaults returns the embedded configuration.
func Defaults() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		panic(fmt.Sprintf("parsing embedded defaults: %v", err))
	}
	return cfg
}

// Load reads path over the embedded defaults and validates the result.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Rules().Validate(); err != nil {
		return err
	}
	bad := func(field, reason string) error {
		return &game.ConfigurationError{Field: field, Reason: reason}
	}
	switch {
	case c.Scoring.MaxStagnation <= 0:
		return bad("scoring.max_stagnation", "must be positive")
	case c.Evaluation.Episodes <= 0:
		return bad("evaluation.episodes", "must be positive")
	case c.Evolution.Population <= 0:
		return bad("evolution.population", "must be positive")
	case c.Evolution.Hidden <= 0:
		return bad("evolution.hidden", "must be positive")
	case c.Evolution.Elite < 0 || c.Evolution.Elite > c.Evolution.Population:
		return bad("evolution.elite", fmt.Sprintf("must be within [0, %d]", c.Evolution.Population))
	case c.Evolution.MutationRate < 0 || c.Evolution.MutationRate > 1:
		return bad("evolution.mutation_rate", "must be within [0, 1]")
	case c.Evolution.Crossover < 0 || c.Evolution.Crossover > 1:
		return bad("evolution.crossover", "must be within [0, 1]")
	}
	if _, err := evolve.SelectorByName(c.Evolution.Selector); err != nil {
		return bad("evolution.selector", err.Error())
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return bad("logging.level", err.Error())
	}
	return nil
}

func (c *Config) Rules() rules.Config {
	return rules.Config{Size: c.Env.Size}
}

func (c *Config) HarnessScoring() harness.Scoring {
	return harness.Scoring{
		SurvivalBonus: c.Scoring.SurvivalBonus,
		FoodBonus:     c.Scoring.FoodBonus,
		DeathPenalty:  c.Scoring.DeathPenalty,
		MaxStagnation: c.Scoring.MaxStagnation,
	}
}

// Evaluator builds a population evaluator from the env, scoring and
// evaluation sections.
func (c *Config) Evaluator() *harness.Evaluator {
	ev := harness.NewEvaluator(c.Rules(), c.Evaluation.Seed)
	ev.Scoring = c.HarnessScoring()
	ev.Workers = c.Evaluation.Workers
	ev.Episodes = c.Evaluation.Episodes
	return ev
}

// TrainerSettings builds trainer settings from the evolution section.
func (c *Config) TrainerSettings() evolve.Settings {
	sel, _ := evolve.SelectorByName(c.Evolution.Selector)
	if t, ok := sel.(evolve.TournamentSelector); ok {
		t.TournamentSize = c.Evolution.Tournament
		sel = t
	}
	return evolve.Settings{
		Population:    c.Evolution.Population,
		Hidden:        c.Evolution.Hidden,
		Elite:         c.Evolution.Elite,
		MutationRate:  c.Evolution.MutationRate,
		MutationSigma: c.Evolution.MutationSigma,
		Crossover:     c.Evolution.Crossover,
		Selector:      sel,
		Seed:          c.Evaluation.Seed,
	}
}

func (c *Config) OnnxConfig() policy.OnnxConfig {
	return policy.OnnxConfig{
		BatchSize:    c.Onnx.BatchSize,
		BatchTimeout: c.Onnx.BatchTimeout,
		UseCUDA:      c.Onnx.CUDA,
	}
}

// YAML renders the effective configuration.
func (c *Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Config) WriteYAML(path string) error {
	data, err := c.YAML()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(data), 0o644)
}

// Logger builds the logger described by the logging section.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(w, c.Logging.Format, level)
}

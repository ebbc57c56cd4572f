package swamp

import (
	"fmt"
	"os"

	"github.com/absmach/supermq/pkg/server"
	"github.com/absmach/swamp/coordinator"
	"github.com/absmach/swamp/eval"
	"github.com/absmach/swamp/pkg/mqtt"
	"github.com/absmach/swamp/pkg/storage"
	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml"
)

const (
	EnvPrefix = "SWAMP_"

	// DefHTTPPort is used when SWAMP_HTTP_PORT is unset; the server config
	// carries no port default of its own.
	DefHTTPPort = "9090"
)

type Config struct {
	LogLevel   string `env:"LOG_LEVEL"   envDefault:"info"  toml:"log_level"`
	InstanceID string `env:"INSTANCE_ID" envDefault:""      toml:"instance_id"`
	// Transport is "local" for an in-memory exchange or "mqtt" to route
	// pushes and the best model through the broker.
	Transport  string  `env:"TRANSPORT"   envDefault:"local" toml:"transport"`
	OTELURL    string  `env:"OTEL_URL"    envDefault:""      toml:"otel_url"`
	TraceRatio float64 `env:"TRACE_RATIO" envDefault:"0"     toml:"trace_ratio"`
	// ServeAPI keeps the status API up after a training run until the
	// process is interrupted.
	ServeAPI bool `env:"SERVE_API" envDefault:"false" toml:"serve_api"`

	Train     coordinator.Config `envPrefix:"TRAIN_"     toml:"train"`
	Data      DataConfig         `envPrefix:"DATA_"      toml:"data"`
	Optimizer OptimizerConfig    `envPrefix:"OPTIMIZER_" toml:"optimizer"`
	Storage   storage.Config     `envPrefix:"STORAGE_"   toml:"storage"`
	MQTT      mqtt.Config        `envPrefix:"MQTT_"      toml:"mqtt"`
	HTTP      server.Config      `envPrefix:"HTTP_"      toml:"http"`
	Eval      eval.Config        `envPrefix:"EVAL_"      toml:"eval"`
}

// DataConfig describes the synthetic regression problem the trainers learn.
type DataConfig struct {
	Samples           int     `env:"SAMPLES"            envDefault:"4096" toml:"samples"`
	ValidationSamples int     `env:"VALIDATION_SAMPLES" envDefault:"512"  toml:"validation_samples"`
	Features          int     `env:"FEATURES"           envDefault:"8"    toml:"features"`
	Noise             float64 `env:"NOISE"              envDefault:"0.1"  toml:"noise"`
	Seed              uint64  `env:"SEED"               envDefault:"1"    toml:"seed"`
}

type OptimizerConfig struct {
	LearningRate float64 `env:"LR"       envDefault:"0.01" toml:"lr"`
	Momentum     float64 `env:"MOMENTUM" envDefault:"0.5"  toml:"momentum"`
}

// LoadConfig reads defaults and SWAMP_* environment variables, then applies
// the keys set in path on top when path is not empty.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}
	if cfg.HTTP.Port == "" {
		cfg.HTTP.Port = DefHTTPPort
	}
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	file, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	base, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("error encoding defaults: %w", err)
	}
	tree, err := toml.LoadBytes(base)
	if err != nil {
		return nil, fmt.Errorf("error encoding defaults: %w", err)
	}
	merge(tree, file)

	var merged Config
	if err := tree.Unmarshal(&merged); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &merged, nil
}

func merge(dst, src *toml.Tree) {
	for _, k := range src.Keys() {
		key := []string{k}
		v := src.GetPath(key)
		if sub, ok := v.(*toml.Tree); ok {
			if d, ok := dst.GetPath(key).(*toml.Tree); ok {
				merge(d, sub)

				continue
			}
		}
		dst.SetPath(key, v)
	}
}

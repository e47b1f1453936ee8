package model

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	StoreBadger = "badger"
	StoreMongo  = "mongo"

	DefaultMaxConcurrency = 5
	DefaultListen         = ":8080"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
}

type Config struct {
	Version int         `json:"version" yaml:"version"` // fixed 0 for now
	Service Service     `json:"service" yaml:"service"`
	Storage Storage     `json:"storage" yaml:"storage"`
	Store   StoreConfig `json:"store" yaml:"store"`
}

// Service configures the supervisor and the HTTP listener.
// Durations accept Go (90s) or ISO8601 (PT90S) syntax, Sweep accepts a cron
// expression or a duration.
type Service struct {
	Verbose        *bool  `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	Listen         string `json:"listen" yaml:"listen"`
	MaxConcurrency int    `json:"max_concurrency" yaml:"max_concurrency"`
	KillGrace      string `json:"kill_grace" yaml:"kill_grace"`
	Retention      string `json:"retention" yaml:"retention"`
	Sweep          string `json:"sweep" yaml:"sweep"`
}

// Storage is the on-disk layout shared with the jobs.
type Storage struct {
	Root        string `json:"root" yaml:"root"`
	EvaluateDir string `json:"evaluate_dir" yaml:"evaluate_dir"`
	OutputDir   string `json:"output_dir" yaml:"output_dir"`
	DatasetDir  string `json:"dataset_dir" yaml:"dataset_dir"`
}

// StoreConfig selects the durable store driver.
type StoreConfig struct {
	Driver   string `json:"driver" yaml:"driver"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
	URI      string `json:"uri,omitempty" yaml:"uri,omitempty"`
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
}

func (s Service) KillGraceDuration() (time.Duration, error) {
	return ParseDuration(s.KillGrace)
}

func (s Service) RetentionDuration() (time.Duration, error) {
	return ParseDuration(s.Retention)
}

// DefaultConfig returns the configuration stored on a first run.
func DefaultConfig(_ context.Context) Config {
	root := "storage"
	if d, err := os.UserCacheDir(); err == nil {
		root = filepath.Join(d, "evaluator")
	}
	return Config{
		Version: 0,
		Service: Service{
			Listen:         DefaultListen,
			MaxConcurrency: DefaultMaxConcurrency,
			KillGrace:      "10s",
			Retention:      "P1D",
			Sweep:          "@hourly",
		},
		Storage: Storage{
			Root:        root,
			EvaluateDir: "evaluate",
			OutputDir:   "output",
			DatasetDir:  "dataset",
		},
		Store: StoreConfig{
			Driver: StoreBadger,
		},
	}
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),
		cue.Concrete(true),
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}
	return out, nil
}

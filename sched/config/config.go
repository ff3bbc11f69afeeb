// Package config loads the scheduler's startup configuration from JSON text or a
// JSON file, applies environment overrides and turns it into a SchedulerConfig.
package config

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/twitter/depsched/sched/scheduler"
)

const (
	// Overrides Config.NumWorkers. -1 selects the default slot count.
	NumThreadsEnvVar = "DEPSCHED_NUMTHREADS"
	// Overrides Config.PerfLog; any value strconv.ParseBool accepts.
	PerfLogEnvVar = "DEPSCHED_PERFLOG"

	// NumWorkers value meaning "2 x runtime.NumCPU()".
	DefaultWorkersSentinel = -1
)

// Config is the scheduler configuration as read from JSON.
type Config struct {
	NumWorkers          int
	PerfLog             bool
	MaxPerfClasses      int     `json:",omitempty"`
	FailedQueueCapacity int     `json:",omitempty"`
	JobTimeout          string  `json:",omitempty"`
	DispatchRate        float64 `json:",omitempty"`
	DispatchBurst       int     `json:",omitempty"`
	Admin               AdminConfig
}

// AdminConfig describes the admin HTTP endpoint. An empty Addr disables it.
type AdminConfig struct {
	Addr     string
	MaxConns int `json:",omitempty"`
}

// Default returns the configuration used when no text is given.
func Default() *Config {
	return &Config{
		NumWorkers:          DefaultWorkersSentinel,
		FailedQueueCapacity: scheduler.DefaultFailedQueueCapacity,
		MaxPerfClasses:      scheduler.DefaultMaxPerfClasses,
		Admin:               AdminConfig{Addr: "localhost:9091", MaxConns: 16},
	}
}

// GetConfigText finds the right text for a configFlag.
// If configFlag looks like a JSON filename (of the form dir/foo.json), read it.
// Otherwise, assume it's the literal json text.
func GetConfigText(configFlag string) ([]byte, error) {
	if matched, _ := regexp.MatchString(`^[[:alnum:]_./-]*\.json$`, configFlag); matched {
		log.Infof("Reading config file %v", configFlag)
		text, err := ioutil.ReadFile(configFlag)
		if err != nil {
			return nil, errors.Wrapf(err, "Error loading config file %v", configFlag)
		}
		return text, nil
	}
	log.Debugf("Using config flag as JSON config: %v", configFlag)
	return []byte(configFlag), nil
}

// Parse overlays configText on Default(). Empty text yields the defaults.
func Parse(configText []byte) (*Config, error) {
	c := Default()
	if len(configText) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(configText, c); err != nil {
		return nil, errors.Wrap(err, "Couldn't parse scheduler config")
	}
	return c, nil
}

// Load reads configFlag (JSON text or a *.json path), parses it and applies the
// environment overrides.
func Load(configFlag string) (*Config, error) {
	text, err := GetConfigText(configFlag)
	if err != nil {
		return nil, err
	}
	c, err := Parse(text)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv(os.LookupEnv)
	return c, nil
}

// ApplyEnv applies NumThreadsEnvVar and PerfLogEnvVar as found by lookup.
// Invalid values are logged and ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(NumThreadsEnvVar); ok {
		n, err := strconv.Atoi(v)
		switch {
		case err != nil:
			log.Warnf("Ignoring %s=%q: %v", NumThreadsEnvVar, v, err)
		case n < DefaultWorkersSentinel:
			log.Warnf("Ignoring %s=%q: must be positive or %d", NumThreadsEnvVar, v, DefaultWorkersSentinel)
		default:
			c.NumWorkers = n
		}
	}
	if v, ok := lookup(PerfLogEnvVar); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Warnf("Ignoring %s=%q: %v", PerfLogEnvVar, v, err)
		} else {
			c.PerfLog = b
		}
	}
}

// Create validates c and converts it to the scheduler's settings.
func (c *Config) Create() (scheduler.SchedulerConfig, error) {
	sc := scheduler.SchedulerConfig{
		NumWorkers:          c.NumWorkers,
		PerfLog:             c.PerfLog,
		MaxPerfClasses:      c.MaxPerfClasses,
		FailedQueueCapacity: c.FailedQueueCapacity,
		DispatchRate:        c.DispatchRate,
		DispatchBurst:       c.DispatchBurst,
	}
	if sc.NumWorkers < DefaultWorkersSentinel {
		return sc, errors.Errorf("NumWorkers must be positive or %d, got %d", DefaultWorkersSentinel, c.NumWorkers)
	}
	if c.FailedQueueCapacity < 0 {
		return sc, errors.Errorf("FailedQueueCapacity must not be negative, got %d", c.FailedQueueCapacity)
	}
	if c.DispatchRate < 0 {
		return sc, errors.Errorf("DispatchRate must not be negative, got %v", c.DispatchRate)
	}
	if c.JobTimeout != "" {
		d, err := time.ParseDuration(c.JobTimeout)
		if err != nil {
			return sc, errors.Wrapf(err, "Invalid JobTimeout %q", c.JobTimeout)
		}
		sc.JobTimeout = d
	}
	return sc, nil
}

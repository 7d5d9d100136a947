package pftrace

import (
	"io"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/pftrace/pftrace/sinks"
)

// Config is the file-level configuration for a trace session. Fields
// may be overridden through PFTRACE_* environment variables.
type Config struct {
	// ProcessName names the process track; defaults to the executable
	// name when empty.
	ProcessName string `yaml:"process_name"`
	// Debug raises the log level to debug.
	Debug bool `yaml:"debug"`
	// Sinks lists the flush destinations to create.
	Sinks []SinkConfig `yaml:"sinks"`
}

// SinkConfig is one entry of the sinks list. Kind selects the sink
// implementation; Config holds the implementation-specific section and
// is decoded by the sink itself.
type SinkConfig struct {
	Kind   string                 `yaml:"kind"`
	Name   string                 `yaml:"name"`
	Config map[string]interface{} `yaml:"config"`
}

// ReadConfig unmarshals the config file and slurps in its data.
func ReadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return readConfig(f)
}

func readConfig(r io.Reader) (c Config, err error) {
	bts, err := io.ReadAll(r)
	if err != nil {
		return
	}
	err = yaml.Unmarshal(bts, &c)
	if err != nil {
		return
	}
	err = envconfig.Process("pftrace", &c)
	if err != nil {
		return c, err
	}
	for i, sink := range c.Sinks {
		if sink.Kind == "" {
			return c, errors.Errorf("sink %d has no kind", i)
		}
		if c.Sinks[i].Name == "" {
			c.Sinks[i].Name = sink.Kind
		}
	}
	return c, nil
}

// SinkCreator builds one sink from its decoded config section.
type SinkCreator func(
	name string, logger *logrus.Entry, config interface{},
) (sinks.TraceSink, error)

// TraceSinkTypes maps sink kinds to creators. Binaries register the
// sinks they link; the library imposes no default set.
type TraceSinkTypes map[string]SinkCreator

// CreateSinks instantiates and starts every sink the config names.
// Unknown kinds are an error, not a warning: a trace silently missing
// its destination is worse than a failed startup.
func CreateSinks(
	config Config, types TraceSinkTypes, logger *logrus.Entry,
) ([]sinks.TraceSink, error) {
	created := []sinks.TraceSink{}
	for _, sinkConfig := range config.Sinks {
		creator, ok := types[sinkConfig.Kind]
		if !ok {
			return nil, errors.Errorf("unknown sink kind %q", sinkConfig.Kind)
		}
		sink, err := creator(
			sinkConfig.Name, logger.WithField("sink", sinkConfig.Name),
			sinkConfig.Config)
		if err != nil {
			return nil, errors.Wrapf(err, "creating sink %q", sinkConfig.Name)
		}
		if err := sink.Start(logger.WithField("sink", sink.Name())); err != nil {
			return nil, errors.Wrapf(err, "starting sink %q", sink.Name())
		}
		created = append(created, sink)
	}
	return created, nil
}

package pftrace

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pftrace/pftrace/sinks"
	"github.com/pftrace/pftrace/sinks/blackhole"
)

const exampleConfig = `
process_name: pipeline-worker
debug: true
sinks:
  - kind: localfile
    name: archive
    config:
      path: /var/trace/pipeline.pftrace
      gzip: true
  - kind: blackhole
`

func TestReadConfig(t *testing.T) {
	config, err := readConfig(strings.NewReader(exampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "pipeline-worker", config.ProcessName)
	assert.True(t, config.Debug)
	require.Len(t, config.Sinks, 2)
	assert.Equal(t, "localfile", config.Sinks[0].Kind)
	assert.Equal(t, "archive", config.Sinks[0].Name)
	assert.Equal(t, "/var/trace/pipeline.pftrace",
		config.Sinks[0].Config["path"])
	// A sink with no name takes its kind as the name.
	assert.Equal(t, "blackhole", config.Sinks[1].Name)
}

func TestReadConfigEnvOverride(t *testing.T) {
	t.Setenv("PFTRACE_PROCESSNAME", "overridden")
	config, err := readConfig(strings.NewReader(exampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "overridden", config.ProcessName)
}

func TestReadConfigRejectsKindlessSink(t *testing.T) {
	_, err := readConfig(strings.NewReader("sinks:\n  - name: anonymous\n"))
	assert.Error(t, err)
}

func TestReadConfigBadYAML(t *testing.T) {
	_, err := readConfig(strings.NewReader("sinks: [unclosed"))
	assert.Error(t, err)
}

func TestCreateSinks(t *testing.T) {
	config := Config{Sinks: []SinkConfig{{Kind: "blackhole", Name: "void"}}}
	types := TraceSinkTypes{
		"blackhole": func(
			name string, logger *logrus.Entry, _ interface{},
		) (sinks.TraceSink, error) {
			return blackhole.NewSink(), nil
		},
	}

	created, err := CreateSinks(config, types, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "blackhole", created[0].Name())
}

func TestCreateSinksUnknownKind(t *testing.T) {
	config := Config{Sinks: []SinkConfig{{Kind: "teleport", Name: "t"}}}
	_, err := CreateSinks(config, TraceSinkTypes{}, logrus.NewEntry(logrus.New()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sink kind")
}

func TestCreateSinksCreatorFailure(t *testing.T) {
	config := Config{Sinks: []SinkConfig{{Kind: "broken", Name: "b"}}}
	types := TraceSinkTypes{
		"broken": func(
			string, *logrus.Entry, interface{},
		) (sinks.TraceSink, error) {
			return nil, errors.New("bad section")
		},
	}
	_, err := CreateSinks(config, types, logrus.NewEntry(logrus.New()))
	assert.Error(t, err)
}

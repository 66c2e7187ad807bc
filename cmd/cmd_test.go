package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hexfury/graphport/internal/config"
	"github.com/hexfury/graphport/internal/observability"
)

const sampleDoc = `<graphml>
  <key id="name" for="node" attr.name="name" attr.type="string"/>
  <graph>
    <node id="a" labels=":Person"><data key="name">Ada</data></node>
    <node id="b"/>
    <edge source="a" target="b" label="KNOWS"/>
  </graph>
</graphml>`

// installObserver consumes the one-time logger setup with a discarded writer,
// then swaps in an observer core for the duration of the test.
func installObserver(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	observability.Initialize(config.LoggerConfig{Level: "info", Format: "console"}, zapcore.AddSync(io.Discard))

	core, logs := observer.New(zap.DebugLevel)
	prev := observability.SetLogger(zap.New(core))
	t.Cleanup(func() { observability.SetLogger(prev) })
	return logs
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// executeCommand runs a fresh root command so tests never share viper state.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestVersionFlag(t *testing.T) {
	installObserver(t)

	out, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestImportCommand(t *testing.T) {
	logs := installObserver(t)
	doc := writeTempFile(t, "graph.graphml", sampleDoc)

	_, err := executeCommand(t, "import", doc, "--driver", "memory", "--read-labels")
	require.NoError(t, err)

	done := logs.FilterMessage("import complete").All()
	require.Len(t, done, 1)
	fields := done[0].ContextMap()
	assert.Equal(t, int64(3), fields["entities"])
	assert.Equal(t, int64(2), fields["nodes"])
	assert.Equal(t, int64(1), fields["relationships"])
	assert.Equal(t, int64(1), fields["properties"])
}

func TestImportMissingInput(t *testing.T) {
	installObserver(t)

	_, err := executeCommand(t, "import", "/nonexistent/graph.graphml", "--driver", "memory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open input")
}

func TestImportRequiresFileArgument(t *testing.T) {
	installObserver(t)

	_, err := executeCommand(t, "import", "--driver", "memory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestImportFlagPrecedence(t *testing.T) {
	doc := writeTempFile(t, "graph.graphml", sampleDoc)
	cfgFile := writeTempFile(t, "config.yaml", "database:\n  driver: memory\nimport:\n  batch_size: 7\n")

	startedBatchSize := func(t *testing.T, logs *observer.ObservedLogs) any {
		t.Helper()
		started := logs.FilterMessage("starting import").All()
		require.Len(t, started, 1)
		return started[0].ContextMap()["batch_size"]
	}

	t.Run("config file applies without the flag", func(t *testing.T) {
		logs := installObserver(t)
		_, err := executeCommand(t, "--config", cfgFile, "import", doc)
		require.NoError(t, err)
		assert.Equal(t, int64(7), startedBatchSize(t, logs))
	})

	t.Run("flag beats the config file", func(t *testing.T) {
		logs := installObserver(t)
		_, err := executeCommand(t, "--config", cfgFile, "import", doc, "--batch-size", "3")
		require.NoError(t, err)
		assert.Equal(t, int64(3), startedBatchSize(t, logs))
	})

	t.Run("environment beats the config file", func(t *testing.T) {
		t.Setenv("GRAPHPORT_IMPORT_BATCH_SIZE", "9")
		logs := installObserver(t)
		_, err := executeCommand(t, "--config", cfgFile, "import", doc)
		require.NoError(t, err)
		assert.Equal(t, int64(9), startedBatchSize(t, logs))
	})
}

func TestExportCommand(t *testing.T) {
	installObserver(t)
	out := filepath.Join(t.TempDir(), "export.graphml")

	_, err := executeCommand(t, "export", out, "--driver", "memory")
	require.NoError(t, err)

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(content), "<graphml")
	assert.Contains(t, string(content), `<graph id="G" edgedefault="directed"/>`)
}

func TestExplicitConfigFileMustExist(t *testing.T) {
	installObserver(t)

	_, err := executeCommand(t, "--config", "/nonexistent/config.yaml", "import", "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestRejectsUnknownDriver(t *testing.T) {
	installObserver(t)
	doc := writeTempFile(t, "graph.graphml", sampleDoc)

	_, err := executeCommand(t, "import", doc, "--driver", "sqlite")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown database.driver "sqlite"`)
}

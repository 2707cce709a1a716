package logging_test

import (
	"bytes"
	"testing"

	"github.com/goccy/go-json"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := logging.New(&buf, "info", logging.FormatJSON)
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	log.Info().Str("table", "producttype").Int("added", 2).Msg("synced")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "producttype", line["table"])
	assert.Equal(t, float64(2), line["added"])
	assert.Equal(t, "synced", line["message"])
	assert.Contains(t, line, "time")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	log, err := logging.New(&buf, "debug", logging.FormatConsole)
	require.NoError(t, err)

	log.Debug().Str("table", "producttype").Msg("synced")
	assert.Contains(t, buf.String(), "synced")
	assert.Contains(t, buf.String(), "table=producttype")
}

func TestNew_Errors(t *testing.T) {
	_, err := logging.New(&bytes.Buffer{}, "loud", logging.FormatJSON)
	assert.Error(t, err)

	_, err = logging.New(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}

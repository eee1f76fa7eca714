package logger

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONOutsideLocal(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "warn")

	var buf bytes.Buffer
	l := NewWithOutput(&buf)
	l.Info("dropped")
	l.WithComponent("extractor").Warn("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "extractor", line["component"])
	assert.Equal(t, "spad-go", line["service"])
}

func TestWithRequestKeepsCallerID(t *testing.T) {
	r := httptest.NewRequest("POST", "/detect", nil)
	r.Header.Set(RequestIDHeader, "abc-123")

	e := Discard().WithRequest(r)

	assert.Equal(t, "abc-123", e.Data["req_id"])
	assert.Equal(t, "/detect", e.Data["path"])
}

func TestRequestIDMintsWhenMissing(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Len(t, RequestID(r), 36)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, parseLevel("debug"))
	assert.Equal(t, logrus.ErrorLevel, parseLevel("error"))
	assert.Equal(t, logrus.InfoLevel, parseLevel("verbose"))
}

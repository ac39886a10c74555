package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeEnv struct{ values map[string]string }

func (f fakeEnv) Getenv(key string) string { return f.values[key] }

func TestUnstructuredLogsWithEnv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		envValue string
		expected bool
	}{
		{"default empty", "", true},
		{"explicitly true", "true", true},
		{"explicitly false", "false", false},
		{"invalid falls back to default", "not-a-bool", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := fakeEnv{values: map[string]string{"UNSTRUCTURED_LOGS": tt.envValue}}
			assert.Equal(t, tt.expected, unstructuredLogsWithEnv(env))
		})
	}
}

func TestLevelFromEnv(t *testing.T) {
	t.Parallel()
	assert.Equal(t, levelFromEnv("debug").String(), "DEBUG")
	assert.Equal(t, levelFromEnv("WARN").String(), "WARN")
	assert.Equal(t, levelFromEnv("error").String(), "ERROR")
	assert.Equal(t, levelFromEnv("").String(), "INFO")
	assert.Equal(t, levelFromEnv("garbage").String(), "INFO")
}

func TestLogFunctionsDoNotPanic(t *testing.T) {
	Initialize()
	assert.NotPanics(t, func() {
		Debug("debug message")
		Infof("info %s", "message")
		Warn("warn message")
		Errorf("error %d", 42)
	})
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadMinimal(t *testing.T) {
	path := writeConfig(t, `
instance_id: relay-01
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "relay-01", cfg.InstanceID)
	assert.Equal(t, 5, cfg.ShutdownTimeoutS)
	assert.Equal(t, "bus", cfg.Output.Kind)
	assert.NotEmpty(t, cfg.Output.ServiceName)
	assert.Equal(t, 16, cfg.Relay.TickMs)
	assert.Equal(t, 66, cfg.Relay.PreviewIntervalMs)
	assert.Equal(t, 320, cfg.Relay.PreviewWidth)
	assert.Equal(t, 300, cfg.Relay.NegotiateAttempts)
	assert.Equal(t, 30, cfg.Relay.FailureThreshold)
	assert.Equal(t, 1280, cfg.Relay.InitialWidth)
	assert.Equal(t, 720, cfg.Relay.InitialHeight)
	assert.Equal(t, "127.0.0.1:8710", cfg.HTTP.Listen)
	assert.Equal(t, 50, cfg.Store.HistoryLimit)
	assert.Equal(t, 30, cfg.Store.RetentionDays)
	assert.False(t, cfg.MQTTEnabled())
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
instance_id: relay-01
shutdown_timeout_s: 10
output:
  kind: ws
  service_name: studio-feed
  ws_endpoint: ws://127.0.0.1:9910/frames
  flip: true
relay:
  tick_ms: 8
  preview_interval_ms: 100
  preview_width: 480
  negotiate_step_ms: 50
  negotiate_attempts: 100
  failure_threshold: 60
  initial_width: 1920
  initial_height: 1080
engine:
  quality: 1080p
  buffer_secs: 10
http:
  listen: 0.0.0.0:9000
mqtt:
  broker: tcp://localhost:1883
store:
  path: /var/lib/texrelay/history.db
  history_limit: 200
  retention_days: 7
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws", cfg.Output.Kind)
	assert.Equal(t, "studio-feed", cfg.Output.ServiceName)
	assert.True(t, cfg.Output.Flip)
	assert.Equal(t, "1080p", cfg.Engine.Quality)
	assert.Equal(t, "0.0.0.0:9000", cfg.HTTP.Listen)
	assert.True(t, cfg.MQTTEnabled())
	assert.Equal(t, "texrelay/control/relay-01", cfg.MQTT.Topics.Control)
	assert.Equal(t, "texrelay/status/relay-01", cfg.MQTT.Topics.Status)
	assert.Equal(t, "texrelay/health/relay-01", cfg.MQTT.Topics.Health)
	assert.Equal(t, byte(1), cfg.MQTT.QoS["control"])
	assert.Equal(t, 200, cfg.Store.HistoryLimit)
	assert.Equal(t, 7, cfg.Store.RetentionDays)

	opts := cfg.RelayOptions()
	assert.Equal(t, 8*time.Millisecond, opts.Tick)
	assert.Equal(t, 100*time.Millisecond, opts.PreviewInterval)
	assert.Equal(t, 480, opts.PreviewWidth)
	assert.Equal(t, 60, opts.FailureThreshold)
	assert.Equal(t, 1920, opts.InitialWidth)
	assert.True(t, opts.FlipOutput)
}

func TestValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing instance id",
			yaml: `shutdown_timeout_s: 5`,
			want: "instance_id is required",
		},
		{
			name: "bad instance id",
			yaml: `instance_id: "Relay 01"`,
			want: "instance_id must match",
		},
		{
			name: "unknown output kind",
			yaml: "instance_id: relay-01\noutput:\n  kind: pigeon",
			want: "output.kind",
		},
		{
			name: "ws without endpoint",
			yaml: "instance_id: relay-01\noutput:\n  kind: ws",
			want: "output.ws_endpoint is required",
		},
		{
			name: "bad quality",
			yaml: "instance_id: relay-01\nengine:\n  quality: 8k",
			want: "engine.quality",
		},
		{
			name: "negative tick",
			yaml: "instance_id: relay-01\nrelay:\n  tick_ms: -1",
			want: "relay timing",
		},
		{
			name: "negative retention",
			yaml: "instance_id: relay-01\nstore:\n  retention_days: -1",
			want: "retention_days",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadBadYAML(t *testing.T) {
	path := writeConfig(t, "instance_id: [unclosed")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

package cmd

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/open-teleop/handpose/pkg/config"
	"github.com/open-teleop/handpose/pkg/handpose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestEncodeAndDecode(t *testing.T) {
	out, err := execute(t, "encode", "--x=1", "--roll=-2")
	require.NoError(t, err)

	want := handpose.Encode(handpose.Record{X: 1, Roll: -2})
	assert.Equal(t, strings.TrimSpace(out), strings.TrimSpace(hex.EncodeToString(want)))

	out, err = execute(t, "encode", "--decode="+hex.EncodeToString(want))
	require.NoError(t, err)
	assert.Contains(t, out, "pos=(1.00, 0.00, 0.00) rot=(0.00, 0.00, -2.00)")

	_, err = execute(t, "encode", "--decode=00ff")
	assert.ErrorIs(t, err, handpose.ErrMalformedRecord)
}

func TestDumpRecords(t *testing.T) {
	codec := handpose.NewCodec(binary.BigEndian)
	var stream bytes.Buffer
	for i := 0; i < 3; i++ {
		require.NoError(t, codec.WriteRecord(&stream, handpose.Record{X: float32(i)}))
	}

	var out bytes.Buffer
	n, err := dumpRecords(bytes.NewReader(stream.Bytes()), &out, codec, false)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, strings.Count(out.String(), "\n"))
	assert.Contains(t, out.String(), "3\tpos=(2.00")

	out.Reset()
	n, err = dumpRecords(bytes.NewReader(stream.Bytes()[:30]), &out, codec, true)
	assert.ErrorIs(t, err, handpose.ErrIncompleteRecord)
	assert.Equal(t, 1, n)
}

func TestDumpCommandReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.bin")
	data := append(handpose.Encode(handpose.Record{Yaw: 1.5}), handpose.Encode(handpose.Record{Yaw: -1.5})...)
	require.NoError(t, os.WriteFile(path, data, 0644))

	out, err := execute(t, "dump", "--byte-order=little", path)
	require.NoError(t, err)
	assert.Contains(t, out, "rot=(0.00, 1.50, 0.00)")
	assert.Contains(t, out, "rot=(0.00, -1.50, 0.00)")
}

func writeBootstrap(t *testing.T, streamConfig string) string {
	t.Helper()
	t.Setenv(config.EnvLogLevel, "")
	t.Setenv(config.EnvHTTPPort, "")

	dir := t.TempDir()
	bootstrap := `
logging:
  level: "warn"
stream:
  listen_address: "127.0.0.1:0"
wire:
  byte_order: "big"
data:
  directory: "` + dir + `"
  stream_config_file: "stream_config.yaml"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.BootstrapFileName), []byte(bootstrap), 0644))
	if streamConfig != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "stream_config.yaml"), []byte(streamConfig), 0644))
	}
	return dir
}

func TestThrottleIntervalFromStreamConfig(t *testing.T) {
	dir := writeBootstrap(t, `
version: "1.0"
config_id: "throttle"
device_id: "desk"
topic_mappings:
  - topic: "handpose.hand"
    priority: "LOW"
throttle_rates:
  low_hz: 20
`)
	require.NoError(t, rootCmd.ParseFlags([]string{"--config-dir", dir}))

	rt, err := loadRuntime(rootCmd)
	require.NoError(t, err)
	assert.Equal(t, binary.BigEndian, rt.codec.Order)
	assert.Equal(t, 50*time.Millisecond, throttleInterval(rt))
}

func TestThrottleIntervalWithoutStreamConfig(t *testing.T) {
	dir := writeBootstrap(t, "")
	require.NoError(t, rootCmd.ParseFlags([]string{"--config-dir", dir}))

	rt, err := loadRuntime(rootCmd)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), throttleInterval(rt))
}

func TestSendRejectsNonPositiveRate(t *testing.T) {
	t.Cleanup(func() { _ = sendCmd.Flags().Set("rate", "10ms") })

	for _, rate := range []string{"0", "-5ms"} {
		_, err := execute(t, "send", "--rate="+rate)
		require.Error(t, err, "rate %s", rate)
		assert.Contains(t, err.Error(), "--rate must be positive")
	}
}

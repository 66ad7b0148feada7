package api

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/open-teleop/handpose/domain/pose"
	"github.com/open-teleop/handpose/pkg/flatbuffers/handpose/message"
	"github.com/open-teleop/handpose/pkg/handpose"
	customlog "github.com/open-teleop/handpose/pkg/log"
	"github.com/open-teleop/handpose/pkg/metrics"
	"github.com/open-teleop/handpose/pkg/processing"
	"github.com/open-teleop/handpose/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const streamYAML = `
version: "1.0"
config_id: "api-test"
device_id: "desk"
topic_mappings:
  - topic: "handpose.hand"
    priority: "HIGH"
`

type recordingRouter struct {
	mu   sync.Mutex
	envs []*message.PoseEnvelope
}

func (r *recordingRouter) RouteMessage(env *message.PoseEnvelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	return nil
}

func (r *recordingRouter) snapshot() []*message.PoseEnvelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*message.PoseEnvelope(nil), r.envs...)
}

type fixture struct {
	app    *fiber.App
	router *recordingRouter
	poses  *pose.PoseService
	hub    *pose.Hub
	cfg    services.StreamConfigService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	path := filepath.Join(t.TempDir(), "stream_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(streamYAML), 0644))
	cfg, err := services.NewStreamConfigService(path, nil)
	require.NoError(t, err)

	codec := handpose.NewCodec(binary.LittleEndian)
	collector := metrics.NewCollector()
	f := &fixture{
		router: &recordingRouter{},
		poses:  pose.NewPoseService(codec),
		hub:    pose.NewHub(8, codec, collector),
		cfg:    cfg,
	}
	f.app = NewApp(ServerOptions{
		Logger:        customlog.NewDiscardLogger(),
		Codec:         codec,
		IngestTopic:   "handpose.hand",
		Router:        f.router,
		Poses:         f.poses,
		Hub:           f.hub,
		ConfigService: cfg,
		Collector:     collector,
	})
	return f
}

// serve runs the app on a loopback port and returns its address.
func (f *fixture) serve(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go f.app.Listener(ln)
	t.Cleanup(func() { _ = f.app.Shutdown() })
	return ln.Addr().String()
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	resp, err := f.app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = f.app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "handpose_viewers")
}

func TestSubmitPoseRoutesRecord(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("POST", "/api/v1/pose",
		strings.NewReader(`{"record":{"x":1,"y":2,"z":3,"pitch":0.1,"yaw":0.2,"roll":0.3}}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	envs := f.router.snapshot()
	require.Len(t, envs, 1)
	assert.Equal(t, "handpose.hand", string(envs[0].Topic()))
	rec, err := handpose.Decode(envs[0].PayloadBytes())
	require.NoError(t, err)
	assert.Equal(t, handpose.Record{X: 1, Y: 2, Z: 3, Pitch: 0.1, Yaw: 0.2, Roll: 0.3}, rec)

	req = httptest.NewRequest("POST", "/api/v1/pose", strings.NewReader(`{"record":`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestStreamConfigRoutes(t *testing.T) {
	f := newFixture(t)

	resp, err := f.app.Test(httptest.NewRequest("GET", "/api/v1/config/stream", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "api-test")

	req := httptest.NewRequest("PUT", "/api/v1/config/stream", strings.NewReader(`version: "2.0"`))
	req.Header.Set("Content-Type", "application/x-yaml")
	resp, err = f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	req = httptest.NewRequest("PUT", "/api/v1/config/stream", strings.NewReader(strings.Replace(streamYAML, "api-test", "api-test-2", 1)))
	req.Header.Set("Content-Type", "application/x-yaml")
	resp, err = f.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var updated map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	assert.Equal(t, "api-test-2", updated["config_id"])
	assert.Equal(t, "api-test-2", f.cfg.GetConfig().ConfigID)

	req = httptest.NewRequest("PUT", "/api/v1/config/stream", nil)
	resp, err = f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestStreamConfigMissing(t *testing.T) {
	cfg, err := services.NewStreamConfigService(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.NoError(t, err)
	app := NewApp(ServerOptions{ConfigService: cfg})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/config/stream", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "has not been set")
}

func TestStreamStats(t *testing.T) {
	f := newFixture(t)
	f.poses.HandleRecord(processing.RecordMeta{Topic: "handpose.hand", SessionID: "s"}, handpose.Record{X: 1})

	resp, err := f.app.Test(httptest.NewRequest("GET", "/api/v1/stream/stats", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var stats struct {
		Viewers int                `json:"viewers"`
		Sources []pose.SourceStats `json:"sources"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 0, stats.Viewers)
	require.Len(t, stats.Sources, 1)
	assert.Equal(t, int64(1), stats.Sources[0].Count)
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	f := newFixture(t)
	resp, err := f.app.Test(httptest.NewRequest("GET", "/ws/pose", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestViewerReceivesBinaryRecords(t *testing.T) {
	f := newFixture(t)
	addr := f.serve(t)

	conn, _, err := fastws.DefaultDialer.Dial("ws://"+addr+"/ws/pose", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	want := handpose.Record{X: 4, Y: 5, Z: 6, Pitch: -1, Yaw: 0.5, Roll: 2}
	f.hub.HandleRecord(processing.RecordMeta{Topic: "handpose.hand"}, want)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	mt, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, fastws.BinaryMessage, mt)
	require.Len(t, frame, handpose.RecordSize)
	got, err := handpose.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	conn.Close()
	require.Eventually(t, func() bool { return f.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestIngestWebSocketRoutesFrames(t *testing.T) {
	f := newFixture(t)
	addr := f.serve(t)

	conn, _, err := fastws.DefaultDialer.Dial("ws://"+addr+"/ws/ingest", nil)
	require.NoError(t, err)
	defer conn.Close()

	want := handpose.Record{X: 1, Y: -1, Z: 0.25, Pitch: 3, Yaw: 2, Roll: 1}
	require.NoError(t, conn.WriteMessage(fastws.BinaryMessage, handpose.Encode(want)))
	require.NoError(t, conn.WriteMessage(fastws.TextMessage, []byte(`{"x":7}`)))

	require.Eventually(t, func() bool { return len(f.router.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)

	envs := f.router.snapshot()
	first, err := handpose.Decode(envs[0].PayloadBytes())
	require.NoError(t, err)
	assert.Equal(t, want, first)
	second, err := handpose.Decode(envs[1].PayloadBytes())
	require.NoError(t, err)
	assert.Equal(t, float32(7), second.X)

	session := string(envs[0].SessionId())
	assert.Len(t, session, 27)
	assert.Equal(t, session, string(envs[1].SessionId()))
}

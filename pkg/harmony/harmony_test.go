package harmony

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/natserract/harmony/pkg/calllog"
	"github.com/natserract/harmony/pkg/config"
	httpclient "github.com/natserract/harmony/pkg/http"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

// fakeEpsilon stands in for both the token host and the API host.
type fakeEpsilon struct {
	*httptest.Server

	mu           sync.Mutex
	tokenCalls   int
	recordCalls  int
	lastRequest  *http.Request
	lastBody     []byte
	tokenStatus  int
	tokenBody    string
	recordStatus int
	recordBody   string
}

func newFakeEpsilon(t *testing.T) *fakeEpsilon {
	f := &fakeEpsilon{
		tokenStatus:  http.StatusOK,
		tokenBody:    `{"access_token":"fresh-token","token_type":"Bearer","expires_in":3600}`,
		recordStatus: http.StatusOK,
		recordBody:   `{"CustomerKey":"X1","Status":"OK"}`,
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeEpsilon) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastRequest = r
	f.lastBody = body

	if r.URL.Path == "/token/Epsilon/oauth2/access_token" {
		f.tokenCalls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.tokenStatus)
		w.Write([]byte(f.tokenBody))
		return
	}

	f.recordCalls++
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.recordStatus)
	w.Write([]byte(f.recordBody))
}

func (f *fakeEpsilon) setToken(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenStatus, f.tokenBody = status, body
}

func (f *fakeEpsilon) setRecord(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordStatus, f.recordBody = status, body
}

func (f *fakeEpsilon) last() (*http.Request, []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRequest, f.lastBody
}

func (f *fakeEpsilon) counts() (tokenCalls, recordCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls, f.recordCalls
}

type testEnv struct {
	client   *Harmony
	server   *fakeEpsilon
	records  *calllog.MemoryStore
	settings *config.MemoryStore
}

// newTestEnv builds a client whose cached token was issued tokenAge ago.
// A negative tokenAge means no token has been acquired yet.
func newTestEnv(t *testing.T, tokenAge time.Duration, opts ...Option) *testEnv {
	t.Helper()

	server := newFakeEpsilon(t)
	s := config.Settings{
		config.KeyClientID:  "client",
		config.KeySecretKey: "secret",
		config.KeyUsername:  "user@example.com",
		config.KeyPassword:  "hunter2",
		config.KeyXOUID:     "ouid-123",
		config.KeyRegion:    config.RegionEU,
		config.KeyTokenURL:  server.URL + "/token",
		config.KeyAPIURL:    server.URL + "/api",
	}
	if tokenAge >= 0 {
		s[config.KeyAccessToken] = "cached-token"
		s[config.KeyTokenTimeout] = strconv.FormatInt(testNow.Add(-tokenAge).Unix(), 10)
	}

	cfg, err := config.Load(s)
	require.NoError(t, err)

	records := calllog.NewMemoryStore()
	settings := config.NewMemoryStore(s)
	opts = append([]Option{
		WithClock(func() time.Time { return testNow }),
		WithHTTPClient(httpclient.NewClientWithHTTPClient(server.Client(), zap.NewNop())),
	}, opts...)
	client := NewHarmonyWithLogger(cfg, calllog.NewLogger(records, zap.NewNop()), settings, zap.NewNop(), opts...)

	return &testEnv{
		client:   client,
		server:   server,
		records:  records,
		settings: settings,
	}
}

func decodeJSON(t *testing.T, s string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

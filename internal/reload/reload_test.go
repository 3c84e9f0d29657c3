package reload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sferrors "github.com/conneroisu/siteforge/internal/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const page = "<html><head><title>t</title></head><body><h1>hi</h1></body></html>"

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/index.php", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, page)
	})
	mux.HandleFunc("/css/main.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = io.WriteString(w, "body{color:red}</body>")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newBroadcaster(t *testing.T, target string, collector *sferrors.ErrorCollector) *Broadcaster {
	t.Helper()
	u, err := url.Parse(target)
	require.NoError(t, err)
	b, err := NewBroadcaster(Options{
		Host:       "127.0.0.1",
		Target:     u,
		OutputRoot: "public",
		Collector:  collector,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })
	return b
}

func TestEventConstructors(t *testing.T) {
	assert.Equal(t, KindInject, ChangeEvent("styles", "public/css/main.css").Kind)
	assert.Equal(t, KindInject, ChangeEvent("styles", "public/css/MAIN.CSS").Kind)
	assert.Equal(t, KindReload, ChangeEvent("scripts", "public/js/app.js").Kind)
	assert.Equal(t, KindReload, ChangeEvent("views", "public/index.php").Kind)

	n := NotifyEvent("styles", "build/styles/b.scss", "boom")
	assert.Equal(t, KindNotify, n.Kind)
	assert.Equal(t, "boom", n.Message)

	r := ResolvedEvent("styles")
	assert.Equal(t, KindNotify, r.Kind)
	assert.Empty(t, r.Message)
}

func TestRelay(t *testing.T) {
	var relay Relay
	rec := &Recorder{}

	relay.Publish(context.Background(), ChangeEvent("styles", "a.css"))
	relay.Attach(rec)
	relay.Publish(context.Background(), ChangeEvent("scripts", "a.js"))
	relay.Attach(nil)
	relay.Publish(context.Background(), ChangeEvent("scripts", "b.js"))

	assert.Equal(t, []Kind{KindReload}, rec.Kinds())
	rec.Reset()
	assert.Empty(t, rec.Events())
}

func TestInjectSnippet(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "before body close",
			in:   "<body><p>x</p></body></html>",
			want: "<body><p>x</p>" + string(snippet) + "</body></html>",
		},
		{
			name: "uppercase tag",
			in:   "<BODY>x</BODY>",
			want: "<BODY>x" + string(snippet) + "</BODY>",
		},
		{
			name: "last body wins",
			in:   "<pre></body></pre></body>",
			want: "<pre></body></pre>" + string(snippet) + "</body>",
		},
		{
			name: "no body appends",
			in:   "<p>fragment</p>",
			want: "<p>fragment</p>" + string(snippet),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(InjectSnippet([]byte(tt.in))))
		})
	}
}

// serve exposes the broadcaster handler on a real listener; the reverse
// proxy needs a connection-backed ResponseWriter.
func serve(t *testing.T, b *Broadcaster) string {
	t.Helper()
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestProxyInjectsClientIntoHTML(t *testing.T) {
	upstream := newUpstream(t)
	b := newBroadcaster(t, upstream.URL, nil)

	resp, body := fetch(t, serve(t, b)+"/index.php")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<h1>hi</h1>")
	assert.Contains(t, body, string(snippet)+"</body>")
	assert.Equal(t, int64(len(body)), resp.ContentLength)
}

func TestProxyLeavesOtherContentAlone(t *testing.T) {
	upstream := newUpstream(t)
	b := newBroadcaster(t, upstream.URL, nil)

	resp, body := fetch(t, serve(t, b)+"/css/main.css")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "body{color:red}</body>", body)
}

func TestProxyUpstreamDown(t *testing.T) {
	upstream := newUpstream(t)
	b := newBroadcaster(t, upstream.URL, nil)
	upstream.Close()

	resp, _ := fetch(t, serve(t, b)+"/index.php")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func fetch(t *testing.T, u string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(u)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestClientScriptRoute(t *testing.T) {
	upstream := newUpstream(t)
	b := newBroadcaster(t, upstream.URL, nil)

	w := httptest.NewRecorder()
	b.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, clientRoute, nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "javascript")
	assert.Contains(t, w.Body.String(), wsRoute)
	assert.Contains(t, w.Body.String(), sferrors.OverlayID)
}

func dialHub(t *testing.T, b *Broadcaster) *websocket.Conn {
	t.Helper()
	u := serve(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(u, "http")+wsRoute, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	require.Eventually(t, func() bool { return b.Hub().Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestPublishRoutesEvents(t *testing.T) {
	upstream := newUpstream(t)
	b := newBroadcaster(t, upstream.URL, nil)
	conn := dialHub(t, b)
	ctx := context.Background()

	b.Publish(ctx, ChangeEvent("styles", "public/css/main.css"))
	msg := readMessage(t, conn)
	assert.Equal(t, KindInject, msg.Type)
	assert.Equal(t, "/css/main.css", msg.Path)

	b.Publish(ctx, ChangeEvent("scripts", "public/js/app.js"))
	assert.Equal(t, KindReload, readMessage(t, conn).Type)

	require.NoError(t, b.Inject(ctx, "public/index.php"))
	assert.Equal(t, KindReload, readMessage(t, conn).Type)
}

func TestNotifyRendersOverlay(t *testing.T) {
	upstream := newUpstream(t)
	collector := sferrors.NewErrorCollector()
	b := newBroadcaster(t, upstream.URL, collector)
	conn := dialHub(t, b)
	ctx := context.Background()

	te := sferrors.NewTransformError("styles", "build/styles/b.scss", fmt.Errorf("expected <ident>")).At(3, 7)
	collector.Add(te)

	b.Publish(ctx, NotifyEvent("styles", te.File, te.Error()))
	msg := readMessage(t, conn)
	assert.Equal(t, KindNotify, msg.Type)
	assert.Contains(t, msg.HTML, sferrors.OverlayID)
	assert.Contains(t, msg.HTML, "build/styles/b.scss:3:7")
	assert.Contains(t, msg.HTML, "expected &lt;ident&gt;")

	collector.Clear("styles")
	b.Publish(ctx, ResolvedEvent("styles"))
	msg = readMessage(t, conn)
	assert.Equal(t, KindNotify, msg.Type)
	assert.Empty(t, msg.HTML)
}

func TestHubDropsClosedClients(t *testing.T) {
	upstream := newUpstream(t)
	b := newBroadcaster(t, upstream.URL, nil)
	conn := dialHub(t, b)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return b.Hub().Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStartPicksPortAfterTarget(t *testing.T) {
	upstream := newUpstream(t)
	b := newBroadcaster(t, upstream.URL, nil)

	require.NoError(t, b.Start(context.Background()))
	require.NotEmpty(t, b.URL())

	u, err := url.Parse(b.URL())
	require.NoError(t, err)
	target, _ := url.Parse(upstream.URL)
	port, _ := strconv.Atoi(u.Port())
	base, _ := strconv.Atoi(target.Port())
	assert.Greater(t, port, base)

	resp, err := http.Get(b.URL() + "/index.php")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), clientRoute)
}

func TestStartFailsOnTakenPort(t *testing.T) {
	upstream := newUpstream(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	u, _ := url.Parse(upstream.URL)
	b, err := NewBroadcaster(Options{
		Host:   "127.0.0.1",
		Port:   ln.Addr().(*net.TCPAddr).Port,
		Target: u,
	}, nil)
	require.NoError(t, err)
	defer b.Shutdown(context.Background())

	err = b.Start(context.Background())
	assert.ErrorIs(t, err, sferrors.ErrServerBind)
}

func TestNewBroadcasterRequiresTarget(t *testing.T) {
	_, err := NewBroadcaster(Options{}, nil)
	assert.Error(t, err)
}

func TestBroadcastAfterShutdown(t *testing.T) {
	h := NewHub(nil)
	h.Shutdown()
	assert.Error(t, h.Broadcast(Message{Type: KindReload}))
}

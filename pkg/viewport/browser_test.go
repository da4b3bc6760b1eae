package viewport

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docshot/pkg/config"
	"docshot/pkg/errors"
	"docshot/pkg/logger"
)

// devtoolsServer is a minimal DevTools websocket endpoint that answers every
// command with an empty result. It records the methods it receives and
// reports when the client hangs up.
type devtoolsServer struct {
	listener     net.Listener
	denyContexts bool

	mu      sync.Mutex
	methods []string
	closed  chan struct{}
}

func newDevtoolsServer(t *testing.T, denyContexts bool) *devtoolsServer {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &devtoolsServer{listener: l, denyContexts: denyContexts, closed: make(chan struct{})}
	t.Cleanup(func() { l.Close() })
	go s.serve()
	return s
}

func (s *devtoolsServer) URL() string {
	return "ws://" + s.listener.Addr().String() + "/devtools/browser/test"
}

func (s *devtoolsServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.methods...)
}

func (s *devtoolsServer) serve() {
	conn, err := s.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	defer close(s.closed)

	r := bufio.NewReader(conn)
	req, err := http.ReadRequest(r)
	if err != nil {
		return
	}
	sum := sha1.Sum([]byte(req.Header.Get("Sec-WebSocket-Key") + "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"))
	fmt.Fprintf(conn, "HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: %s\r\n\r\n",
		base64.StdEncoding.EncodeToString(sum[:]))

	for {
		payload, err := readClientFrame(r)
		if err != nil {
			return
		}
		var call struct {
			ID     int    `json:"id"`
			Method string `json:"method"`
		}
		if err := json.Unmarshal(payload, &call); err != nil {
			return
		}
		s.mu.Lock()
		s.methods = append(s.methods, call.Method)
		s.mu.Unlock()

		reply := fmt.Sprintf(`{"id":%d,"result":{}}`, call.ID)
		switch {
		case call.Method == "Target.createBrowserContext" && s.denyContexts:
			reply = fmt.Sprintf(`{"id":%d,"error":{"code":-32000,"message":"browser contexts are disabled"}}`, call.ID)
		case call.Method == "Target.createBrowserContext":
			reply = fmt.Sprintf(`{"id":%d,"result":{"browserContextId":"ctx-1"}}`, call.ID)
		}
		if err := writeServerFrame(conn, []byte(reply)); err != nil {
			return
		}
	}
}

func readClientFrame(r *bufio.Reader) ([]byte, error) {
	var head [2]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	size := uint64(head[1] & 0x7f)
	switch size {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, err
		}
		size = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, err
		}
		size = binary.BigEndian.Uint64(ext[:])
	}

	var mask [4]byte
	if head[1]&0x80 != 0 {
		if _, err := io.ReadFull(r, mask[:]); err != nil {
			return nil, err
		}
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	for i := range payload {
		payload[i] ^= mask[i%4]
	}
	return payload, nil
}

func writeServerFrame(w io.Writer, payload []byte) error {
	head := []byte{0x81}
	if len(payload) < 126 {
		head = append(head, byte(len(payload)))
	} else {
		head = append(head, 126, byte(len(payload)>>8), byte(len(payload)))
	}
	_, err := w.Write(append(head, payload...))
	return err
}

func attachConfig(url string) config.BrowserConfig {
	cfg := config.DefaultConfig().Browser
	cfg.DebuggerURL = url
	cfg.ConnectAttempts = 1
	return cfg
}

func waitClosed(t *testing.T, s *devtoolsServer) {
	t.Helper()
	select {
	case <-s.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("connection to the attached browser was left open")
	}
}

func TestLaunchDropsConnectionWhenContextFails(t *testing.T) {
	srv := newDevtoolsServer(t, true)

	_, err := Launch(context.Background(), attachConfig(srv.URL()), logger.NewNopLogger())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRemote))

	waitClosed(t, srv)
	methods := srv.received()
	assert.Contains(t, methods, "Target.createBrowserContext")
	assert.NotContains(t, methods, "Browser.close", "an attached browser must keep running")
}

func TestCloseKeepsAttachedBrowserRunning(t *testing.T) {
	srv := newDevtoolsServer(t, false)

	b, err := Launch(context.Background(), attachConfig(srv.URL()), logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, b.Close())

	waitClosed(t, srv)
	methods := srv.received()
	assert.Contains(t, methods, "Target.disposeBrowserContext")
	assert.NotContains(t, methods, "Browser.close")
}

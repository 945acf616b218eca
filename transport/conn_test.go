package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"chemrpc/protocol"
)

// unix socket 路径有长度限制，所以不用 t.TempDir()
func testEndpoint(t *testing.T) string {
	t.Helper()
	path := filepath.Join(os.TempDir(), "crpc-"+uuid.NewString()[:8]+".sock")
	t.Cleanup(func() { os.Remove(path) })
	return path
}

// echoServer 把收到的每个 frame 原样写回
func echoServer(t *testing.T, endpoint string) *net.UnixListener {
	t.Helper()
	ln, err := Listen(endpoint)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go func(nc net.Conn) {
				defer nc.Close()
				for {
					payload, err := protocol.ReadFrame(nc)
					if err != nil {
						return
					}
					if err := protocol.WriteFrame(nc, payload); err != nil {
						return
					}
				}
			}(nc)
		}
	}()
	return ln
}

func TestConnSendReceive(t *testing.T) {
	endpoint := testEndpoint(t)
	echoServer(t, endpoint)

	conn, err := Dial(context.Background(), endpoint)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	msgs := []string{`{"jsonrpc":"2.0","id":0,"method":"kill"}`, `{}`, ``}
	for _, m := range msgs {
		if err := conn.Send([]byte(m)); err != nil {
			t.Fatalf("send failed: %v", err)
		}
		got, err := conn.ReceiveTimeout(2 * time.Second)
		if err != nil {
			t.Fatalf("receive failed: %v", err)
		}
		if string(got) != m {
			t.Fatalf("expect %q, got %q", m, got)
		}
	}
}

func TestDialMissingEndpoint(t *testing.T) {
	endpoint := testEndpoint(t)

	_, err := Dial(context.Background(), endpoint)
	if err == nil {
		t.Fatal("expect connect error, got nil")
	}
	if !IsConnectError(err) {
		t.Fatalf("expect *ConnectError, got %T: %v", err, err)
	}
}

func TestEndpointPath(t *testing.T) {
	if got := EndpointPath("/run/chem.sock"); got != "/run/chem.sock" {
		t.Fatalf("absolute path should be kept, got %s", got)
	}
	if got := EndpointPath("chemdata"); got != filepath.Join(os.TempDir(), "chemdata") {
		t.Fatalf("bare name should resolve under temp dir, got %s", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	endpoint := testEndpoint(t)
	echoServer(t, endpoint)

	conn, err := Dial(context.Background(), endpoint)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if err := conn.Send([]byte("{}")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expect ErrClosed after close, got %v", err)
	}
	if _, err := conn.Receive(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expect ErrClosed after close, got %v", err)
	}
}

// 服务端只写一半 payload 就关闭连接
func TestReceivePrematureClose(t *testing.T) {
	client, server := net.Pipe()
	conn := NewConn(client, "pipe")

	go func() {
		header := make([]byte, protocol.HeaderSize)
		binary.BigEndian.PutUint32(header, 64)
		server.Write(header)
		server.Write([]byte("partial"))
		server.Close()
	}()

	_, err := conn.ReceiveTimeout(2 * time.Second)
	if !IsIOError(err) {
		t.Fatalf("expect *IOError, got %T: %v", err, err)
	}
	if !errors.Is(err, protocol.ErrTruncatedFrame) {
		t.Fatalf("expect truncated frame cause, got %v", err)
	}
	if !conn.Closed() {
		t.Fatal("conn must close itself after a failed receive")
	}
}

func TestReceiveOversizeHeader(t *testing.T) {
	client, server := net.Pipe()
	conn := NewConn(client, "pipe", WithLimits(protocol.Limits{MaxPayloadBytes: 16}))
	defer server.Close()

	go func() {
		header := make([]byte, protocol.HeaderSize)
		binary.BigEndian.PutUint32(header, 1<<30)
		server.Write(header)
	}()

	_, err := conn.ReceiveTimeout(2 * time.Second)
	if !protocol.IsFramingError(err) {
		t.Fatalf("expect framing error, got %T: %v", err, err)
	}
}

func TestReceiveTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	conn := NewConn(client, "pipe")

	start := time.Now()
	_, err := conn.ReceiveTimeout(50 * time.Millisecond)
	var ioe *IOError
	if !errors.As(err, &ioe) || !ioe.Timeout() {
		t.Fatalf("expect timeout IOError, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout took too long: %v", time.Since(start))
	}
}

func TestSendBrokenPipe(t *testing.T) {
	client, server := net.Pipe()
	server.Close()
	conn := NewConn(client, "pipe")

	err := conn.Send([]byte(`{}`))
	if !IsIOError(err) {
		t.Fatalf("expect *IOError, got %T: %v", err, err)
	}
}

func TestListenRemovesStaleSocket(t *testing.T) {
	endpoint := testEndpoint(t)

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: endpoint, Net: "unix"})
	if err != nil {
		t.Fatal(err)
	}
	// 模拟进程崩溃：socket 文件留在磁盘上
	ln.SetUnlinkOnClose(false)
	ln.Close()

	ln2, err := Listen(endpoint)
	if err != nil {
		t.Fatalf("listen over stale socket failed: %v", err)
	}
	ln2.Close()
}

func TestListenRefusesLiveEndpoint(t *testing.T) {
	endpoint := testEndpoint(t)
	echoServer(t, endpoint)

	if _, err := Listen(endpoint); err == nil {
		t.Fatal("expect error when endpoint is already served")
	}
}

func TestPoolConcurrentCallers(t *testing.T) {
	endpoint := testEndpoint(t)
	echoServer(t, endpoint)

	pool := NewPool(endpoint, 4)
	defer pool.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			conn, err := pool.Get(ctx)
			if err != nil {
				t.Errorf("get failed: %v", err)
				return
			}
			defer pool.Put(conn)

			msg := []byte{byte('a' + n%26)}
			if err := conn.Send(msg); err != nil {
				t.Errorf("send failed: %v", err)
				return
			}
			got, err := conn.ReceiveTimeout(2 * time.Second)
			if err != nil {
				t.Errorf("receive failed: %v", err)
				return
			}
			if string(got) != string(msg) {
				t.Errorf("expect %q, got %q", msg, got)
			}
		}(i)
	}
	wg.Wait()
}

func TestPoolDiscardsClosedConn(t *testing.T) {
	endpoint := testEndpoint(t)
	echoServer(t, endpoint)

	pool := NewPool(endpoint, 1)
	defer pool.Close()

	ctx := context.Background()
	c1, err := pool.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	c1.Close()
	pool.Put(c1)

	// 只有一个名额：坏连接必须释放名额，否则这里会阻塞
	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	c2, err := pool.Get(ctx2)
	if err != nil {
		t.Fatalf("get after discard failed: %v", err)
	}
	if c2 == c1 {
		t.Fatal("closed conn must not be handed out again")
	}
	pool.Put(c2)
}

func TestPoolClosed(t *testing.T) {
	pool := NewPool(testEndpoint(t), 1)
	pool.Close()
	if _, err := pool.Get(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expect ErrPoolClosed, got %v", err)
	}
}

// Put 和 Close 并发：不管谁先，最后每条连接都必须被关掉，不能留在池里
func TestPoolPutRacesClose(t *testing.T) {
	endpoint := testEndpoint(t)
	echoServer(t, endpoint)

	for round := 0; round < 20; round++ {
		pool := NewPool(endpoint, 4)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)

		conns := make([]*Conn, 0, 4)
		for i := 0; i < 4; i++ {
			c, err := pool.Get(ctx)
			if err != nil {
				cancel()
				t.Fatalf("get failed: %v", err)
			}
			conns = append(conns, c)
		}
		cancel()

		var wg sync.WaitGroup
		for _, c := range conns {
			wg.Add(1)
			go func(c *Conn) {
				defer wg.Done()
				pool.Put(c)
			}(c)
		}
		pool.Close()
		wg.Wait()

		for i, c := range conns {
			if !c.Closed() {
				t.Fatalf("round %d: conn %d left open after Put/Close", round, i)
			}
		}
	}
}

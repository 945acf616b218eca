package middleware

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"chemrpc/message"
)

// 模拟一个简单的 handler：直接返回成功响应
func echoHandler(ctx context.Context, req *message.Request) *message.Response {
	resp, _ := message.NewResult(req.ID, "ok")
	return resp
}

// 模拟一个慢 handler：睡 200ms
func slowHandler(ctx context.Context, req *message.Request) *message.Response {
	time.Sleep(200 * time.Millisecond)
	return echoHandler(ctx, req)
}

func panicHandler(ctx context.Context, req *message.Request) *message.Response {
	panic("boom")
}

func newReq(t *testing.T) *message.Request {
	t.Helper()
	id := message.IntID(1)
	req, err := message.NewRequest(&id, "getChemicalJson", map[string]string{"inchi": "InChI=1S/CH4O/c1-2/h2H,1H3"})
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	handler := LoggingMiddleware(zap.New(core))(echoHandler)

	resp := handler(context.Background(), newReq(t))

	if resp == nil {
		t.Fatal("expect non-nil response")
	}
	if string(resp.Result) != `"ok"` {
		t.Fatalf("expect result \"ok\", got '%s'", resp.Result)
	}
	entries := logs.FilterMessage("request handled").All()
	if len(entries) != 1 {
		t.Fatalf("expect 1 log entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["method"] != "getChemicalJson" {
		t.Fatalf("expect method field, got %v", entries[0].ContextMap())
	}
}

func TestTimeoutPass(t *testing.T) {
	// 超时 500ms，handler 很快，应该正常返回
	handler := TimeOutMiddleware(500 * time.Millisecond)(echoHandler)

	resp := handler(context.Background(), newReq(t))

	if resp.Error != nil {
		t.Fatalf("expect no error, got '%v'", resp.Error)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	// 超时 50ms，handler 需要 200ms，应该超时
	handler := TimeOutMiddleware(50 * time.Millisecond)(slowHandler)

	req := newReq(t)
	resp := handler(context.Background(), req)

	if resp.Error == nil || resp.Error.Code != message.CodeInternalError {
		t.Fatalf("expect internal error, got '%v'", resp.Error)
	}
	if *resp.ID != *req.ID {
		t.Fatalf("timeout response must keep the request id, got %v", resp.ID)
	}
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2 → 前 2 个立刻放行，第 3 个被拒
	handler := RateLimitMiddleware(1, 2)(echoHandler)
	req := newReq(t)

	// 前 2 个应该通过（burst=2）
	for i := 0; i < 2; i++ {
		resp := handler(context.Background(), req)
		if resp.Error != nil {
			t.Fatalf("request %d should pass, got error: %v", i, resp.Error)
		}
	}

	// 第 3 个应该被限流
	resp := handler(context.Background(), req)
	if resp.Error == nil || resp.Error.Message != "Internal error: rate limit exceeded" {
		t.Fatalf("request 3 should be rate limited, got: '%v'", resp.Error)
	}
}

func TestRecover(t *testing.T) {
	handler := RecoverMiddleware(nil)(panicHandler)

	resp := handler(context.Background(), newReq(t))
	if resp == nil || resp.Error == nil {
		t.Fatal("expect error response after panic")
	}
	if resp.Error.Code != message.CodeInternalError {
		t.Fatalf("expect -32603, got %d", resp.Error.Code)
	}
}

func TestChain(t *testing.T) {
	// 用 Chain 组合 Recover + Logging + Timeout，验证请求能正常穿过
	chained := Chain(RecoverMiddleware(nil), LoggingMiddleware(nil), TimeOutMiddleware(500*time.Millisecond))
	handler := chained(echoHandler)

	resp := handler(context.Background(), newReq(t))

	if resp == nil {
		t.Fatal("expect non-nil response")
	}
	if resp.Error != nil {
		t.Fatalf("expect no error, got '%v'", resp.Error)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *message.Request) *message.Response {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	Chain(mark("a"), mark("b"), mark("c"))(echoHandler)(context.Background(), newReq(t))
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("expect a,b,c got %v", order)
	}
}

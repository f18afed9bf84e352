package ethereum

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jsonrpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params []any           `json:"params"`
}

// nodeStub answers JSON-RPC requests with handle's result or error object.
func nodeStub(t *testing.T, handle func(req jsonrpcRequest) (result any, rpcErr map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonrpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		result, rpcErr := handle(req)
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, url string, opts ...ClientOption) *Client {
	t.Helper()
	c, err := Dial(context.Background(), url, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestClient_ChainID(t *testing.T) {
	srv := nodeStub(t, func(req jsonrpcRequest) (any, map[string]any) {
		assert.Equal(t, "eth_chainId", req.Method)
		assert.Empty(t, req.Params)
		return "0x89", nil
	})

	chainID, err := dial(t, srv.URL).ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0x89", chainID)
}

func TestClient_Call(t *testing.T) {
	srv := nodeStub(t, func(req jsonrpcRequest) (any, map[string]any) {
		assert.Equal(t, "eth_call", req.Method)
		if !assert.Len(t, req.Params, 2) {
			return "0x", nil
		}
		msg, ok := req.Params[0].(map[string]any)
		assert.True(t, ok)
		assert.Equal(t, "0x00000000000000000000000000000000000000aa", msg["to"])
		assert.Equal(t, "0xdeadbeef", msg["data"])
		assert.Equal(t, "latest", req.Params[1])
		return "0x0102", nil
	})

	out, err := dial(t, srv.URL).Call(context.Background(), CallMsg{
		To:   "0x00000000000000000000000000000000000000aa",
		Data: []byte{0xde, 0xad, 0xbe, 0xef},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, out)
}

func TestClient_RPCErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := nodeStub(t, func(jsonrpcRequest) (any, map[string]any) {
		calls.Add(1)
		return nil, map[string]any{"code": -32000, "message": "execution reverted"}
	})

	_, err := dial(t, srv.URL, WithRetryDelay(time.Millisecond)).
		Call(context.Background(), CallMsg{To: "0x00000000000000000000000000000000000000aa"})

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)
	assert.Equal(t, "eth_call", rpcErr.Method)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var req jsonrpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "0x1"})
	}))
	defer srv.Close()

	chainID, err := dial(t, srv.URL, WithRetryDelay(time.Millisecond), WithMaxDelay(5*time.Millisecond)).
		ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0x1", chainID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_MaxRetriesExceeded(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := dial(t, srv.URL, WithMaxRetries(2), WithRetryDelay(time.Millisecond)).
		ChainID(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := dial(t, srv.URL, WithRetryDelay(time.Millisecond)).ChainID(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := dial(t, srv.URL, WithRetryDelay(time.Second)).ChainID(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDial_RejectsUnknownScheme(t *testing.T) {
	_, err := Dial(context.Background(), "ftp://node.example")
	assert.Error(t, err)
}

package bridge

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/serial-connect/internal/config"
)

func testBridgeConfig() *config.BridgeConfig {
	return &config.BridgeConfig{
		Host:         "127.0.0.1",
		Port:         0,
		Path:         "/serial",
		TokenExpire:  time.Hour,
		WriteTimeout: time.Second,
		PingInterval: time.Second,
	}
}

// newTestRouter 不打开串口，只挂路由
func newTestRouter(s *Server) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/healthz", s.handleHealth)

	api := router.Group("")
	if s.tokens != nil {
		api.Use(s.tokens.RequireAuth())
	}
	api.GET("/sessions", s.handleSessions)
	return router
}

// 健康检查返回设备信息
func TestHealthEndpoint(t *testing.T) {
	s := NewServer(testBridgeConfig(), "/dev/ttyUSB0", 57600, nil)
	router := newTestRouter(s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/dev/ttyUSB0")
	assert.Contains(t, w.Body.String(), "57600")
}

// 历史记录关闭时sessions返回空列表
func TestSessionsWithoutHistory(t *testing.T) {
	s := NewServer(testBridgeConfig(), "/dev/ttyUSB0", 57600, nil)
	router := newTestRouter(s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sessions":[]}`, w.Body.String())
}

// 并发接入时同一时刻仍然只允许一个客户端
// 忙检查与升级之间若不占位，多个客户端会同时通过空检查
func TestBridgeSingleClient(t *testing.T) {
	s := NewServer(testBridgeConfig(), "/dev/ttyUSB0", 57600, nil)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/serial", s.handleWebSocket)

	srv := httptest.NewServer(router)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/serial"

	var accepted int32
	var connMu sync.Mutex
	var conns []*websocket.Conn

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			if err != nil {
				// 被拒绝的客户端收到409，握手失败
				return
			}
			atomic.AddInt32(&accepted, 1)
			connMu.Lock()
			conns = append(conns, conn)
			connMu.Unlock()
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&accepted),
		"并发接入只应有一个客户端成功")

	for _, conn := range conns {
		conn.Close()
	}
}

// 客户端断开后占位释放，新客户端可以接入
func TestBridgeClientSlotReleased(t *testing.T) {
	s := NewServer(testBridgeConfig(), "/dev/ttyUSB0", 57600, nil)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/serial", s.handleWebSocket)

	srv := httptest.NewServer(router)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/serial"

	first, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	// 占位期间第二个客户端被拒绝
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// 第一个断开后占位释放
	first.Close()
	require.Eventually(t, func() bool {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 50*time.Millisecond)
}

// 配置口令后未带令牌的请求被拒绝
func TestAuthRequired(t *testing.T) {
	cfg := testBridgeConfig()
	cfg.Secret = "test-secret"

	s := NewServer(cfg, "/dev/ttyUSB0", 57600, nil)
	require.NotNil(t, s.tokens)
	router := newTestRouter(s)

	// 无令牌
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 带合法令牌
	token, err := s.tokens.Generate("/dev/ttyUSB0")
	require.NoError(t, err)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/sessions?token="+token, nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

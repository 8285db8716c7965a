package bridge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/tarm/serial"
	"github.com/wfunc/serial-connect/internal/config"
	"github.com/wfunc/serial-connect/internal/errors"
	"github.com/wfunc/serial-connect/internal/history"
	"github.com/wfunc/serial-connect/internal/logger"
	"go.uber.org/zap"
)

// Server WebSocket串口桥接服务
// 把本机串口共享给远端客户端，字节流双向透传，不做任何协议解释
type Server struct {
	cfg      *config.BridgeConfig
	device   string
	baud     int
	port     *serial.Port
	tokens   *TokenManager
	sessions *history.SessionRepository // 可为nil，历史记录关闭时

	httpServer *http.Server
	logger     *zap.Logger

	mu     sync.Mutex
	client *websocket.Conn // 同一时刻只允许一个客户端
	busy   bool            // 从忙检查到升级完成期间占位，并发接入只放行一个
}

// upgrader WebSocket升级器
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 本地共享工具，不校验Origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewServer 创建桥接服务
func NewServer(cfg *config.BridgeConfig, device string, baud int, sessions *history.SessionRepository) *Server {
	s := &Server{
		cfg:      cfg,
		device:   device,
		baud:     baud,
		sessions: sessions,
		logger:   logger.GetModuleLogger("bridge"),
	}

	if cfg.Secret != "" {
		s.tokens = NewTokenManager(cfg.Secret, cfg.TokenExpire)
	}

	return s
}

// Run 打开串口并启动HTTP服务，阻塞直到ctx取消
func (s *Server) Run(ctx context.Context) error {
	port, err := serial.OpenPort(&serial.Config{
		Name:        s.device,
		Baud:        s.baud,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return errors.Wrapf(err, errors.ErrSerialPortOpen, "device: %s", s.device)
	}
	s.port = port
	defer port.Close()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.handleHealth)

	api := router.Group("")
	if s.tokens != nil {
		api.Use(s.tokens.RequireAuth())
	}
	api.GET(s.cfg.Path, s.handleWebSocket)
	api.GET("/sessions", s.handleSessions)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// 有认证时打印一个可用的访问令牌，方便客户端接入
	if s.tokens != nil {
		if token, err := s.tokens.Generate(s.device); err == nil {
			fmt.Printf("访问令牌: %s\n", token)
		}
	}

	s.logger.Info("桥接服务已启动",
		zap.String("addr", addr),
		zap.String("path", s.cfg.Path),
		zap.String("device", s.device),
		zap.Int("baud", s.baud),
		zap.Bool("auth", s.tokens != nil))
	fmt.Printf("桥接 %s @ %d → ws://%s%s\n", s.device, s.baud, addr, s.cfg.Path)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- errors.Wrap(err, errors.ErrBridgeListen)
		}
	}()

	// 串口 -> 客户端 的广播循环
	go s.pumpPortToClient(ctx)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("桥接服务关闭失败", zap.Error(err))
	}

	s.logger.Info("桥接服务已停止")
	return nil
}

// handleHealth 健康检查
func (s *Server) handleHealth(c *gin.Context) {
	s.mu.Lock()
	connected := s.client != nil
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"device":    s.device,
		"baud_rate": s.baud,
		"client":    connected,
	})
}

// handleSessions 查询最近的会话记录
func (s *Server) handleSessions(c *gin.Context) {
	if s.sessions == nil {
		c.JSON(http.StatusOK, gin.H{"sessions": []interface{}{}})
		return
	}

	records, err := s.sessions.Recent(20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "QUERY_FAILED",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": records})
}

// handleWebSocket 处理客户端接入
func (s *Server) handleWebSocket(c *gin.Context) {
	// 忙检查到升级完成之间必须持续占位，否则并发接入会都通过空检查
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{
			"code":    "BUSY",
			"message": errors.New(errors.ErrBridgeBusy).Message,
		})
		return
	}
	s.busy = true
	s.mu.Unlock()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
		s.logger.Error("WebSocket升级失败", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.client = conn
	s.mu.Unlock()

	clientIP := c.ClientIP()
	s.logger.Info("客户端已连接",
		zap.String("client_ip", clientIP))

	var sessionID string
	if s.sessions != nil {
		if id, err := s.sessions.Begin(s.device, s.baud, history.SessionModeBridge, clientIP); err == nil {
			sessionID = id
		}
	}

	// 客户端 -> 串口
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if _, err := s.port.Write(data); err != nil {
			s.logger.Error("串口写入失败", zap.Error(err))
			break
		}
		logger.LogBridgeMessage("to_device", len(data), clientIP)
	}

	conn.Close()

	s.mu.Lock()
	s.client = nil
	s.busy = false
	s.mu.Unlock()

	if s.sessions != nil && sessionID != "" {
		if err := s.sessions.Finish(sessionID, 0); err != nil {
			s.logger.Warn("会话记录更新失败", zap.Error(err))
		}
	}

	s.logger.Info("客户端已断开",
		zap.String("client_ip", clientIP))
}

// pumpPortToClient 串口数据转发到当前客户端
func (s *Server) pumpPortToClient(ctx context.Context) {
	buf := make([]byte, 1024)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := s.port.Read(buf)
		if err != nil {
			// 读超时与EOF都继续轮询
			if err == io.EOF || strings.Contains(err.Error(), "EOF") {
				continue
			}
			s.logger.Error("串口读取失败", zap.Error(err))
			return
		}
		if n == 0 {
			continue
		}

		s.mu.Lock()
		conn := s.client
		s.mu.Unlock()
		if conn == nil {
			continue
		}

		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); err != nil {
			s.logger.Warn("客户端写入失败", zap.Error(err))
			continue
		}
		logger.LogBridgeMessage("to_client", n, "")
	}
}

package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server fieldops HTTP 服务
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		// net/http 内部错误（TLS 握手、panic 恢复等）写入 zap
		ErrorLog: zap.NewStdLog(logger.Named("http")),
	}
	return &Server{httpServer: s, logger: logger}
}

// Start 阻塞直到服务停止；Stop 触发的正常关闭返回 nil
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve 在已有 listener 上提供服务
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Starting fieldops HTTP server", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 等待进行中的请求完成（包括提交后的事件发布），超时由 ctx 控制
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping fieldops HTTP server")
	return s.httpServer.Shutdown(ctx)
}

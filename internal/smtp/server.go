package smtp

import (
	"context"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"
)

// Server 包装 go-smtp 服务器，提供上下文驱动的启停。
type Server struct {
	srv *gosmtp.Server
	log *zap.Logger
}

// NewServer 创建入站 SMTP 服务器。
func NewServer(backend *Backend, addr, hostname string, log *zap.Logger) *Server {
	srv := gosmtp.NewServer(backend)
	srv.Addr = addr
	srv.Domain = hostname
	srv.ReadTimeout = 60 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.MaxMessageBytes = maxMessageBytes
	srv.MaxRecipients = 10

	return &Server{srv: srv, log: log}
}

// Run 启动服务并阻塞到上下文取消或监听失败。
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("SMTP server listening", zap.String("addr", s.srv.Addr))
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		if err := s.srv.Close(); err != nil {
			s.log.Error("SMTP server close failed", zap.Error(err))
		}
		return ctx.Err()
	case err := <-errc:
		return err
	}
}

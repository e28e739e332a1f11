// Package smtp 实现只收不发的入站 SMTP 服务。
//
// 收件人必须在收件人集合中，否则在 RCPT 阶段即以 550 拒绝，
// 服务器不做任何中继。
package smtp

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/mail"
	"strings"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"driftmail/backend/internal/ingest"
	"driftmail/backend/internal/monitoring"
	"driftmail/backend/internal/registry"
)

// maxMessageBytes 单封邮件的原始内容上限。
const maxMessageBytes = 10 << 20

// Backend 实现 go-smtp 的 Backend 接口。
type Backend struct {
	registry registry.Registry
	pipeline *ingest.Pipeline
	limiter  *ConnectionLimiter
	log      *zap.Logger
	metrics  *monitoring.Metrics
}

// NewBackend 创建 SMTP Backend。
func NewBackend(reg registry.Registry, pipeline *ingest.Pipeline, limiter *ConnectionLimiter, log *zap.Logger, metrics *monitoring.Metrics) *Backend {
	return &Backend{
		registry: reg,
		pipeline: pipeline,
		limiter:  limiter,
		log:      log,
		metrics:  metrics,
	}
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	if !b.limiter.Acquire() {
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "too many connections, try again later",
		}
	}
	b.metrics.RecordSMTPConnection()
	return &session{backend: b}, nil
}

type session struct {
	backend     *Backend
	fromAddress string
	recipients  []string
	released    bool
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, opts *gosmtp.MailOptions) error {
	s.fromAddress = normalizeAddress(from)
	return nil
}

// Rcpt 处理 RCPT 命令。收件人不在集合中的邮件直接拒收，
// 这是防止中继滥用的唯一闸门。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)
	if !strings.Contains(addr, "@") {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	admitted, err := s.backend.registry.Contains(ctx, addr)
	if err != nil {
		s.backend.log.Error("recipient lookup failed", zap.String("address", addr), zap.Error(err))
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "temporary failure, try again later",
		}
	}
	if !admitted {
		s.backend.metrics.RecordSMTPRecipientDenied()
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "recipient mailbox not found",
		}
	}

	s.recipients = append(s.recipients, addr)
	return nil
}

// Data 接收邮件内容并逐收件人入库。
func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(io.LimitReader(r, maxMessageBytes))
	if err != nil {
		return err
	}

	subject, sender, date := headerMetadata(raw)
	if sender == "" {
		sender = s.fromAddress
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, rcpt := range s.recipients {
		_, err := s.backend.pipeline.Ingest(ctx, &ingest.Event{
			Recipient: rcpt,
			Sender:    sender,
			Subject:   subject,
			Date:      date,
			RawMIME:   raw,
		})
		if err != nil {
			s.backend.metrics.RecordMessageRejected()
			s.backend.log.Error("message ingestion failed",
				zap.String("recipient", rcpt),
				zap.Error(err),
			)
			return &gosmtp.SMTPError{
				Code:         451,
				EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
				Message:      "message could not be stored",
			}
		}
		s.backend.metrics.RecordSMTPMessageAccepted()
	}
	return nil
}

// Reset 重置状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束，释放连接配额。
func (s *session) Logout() error {
	if !s.released {
		s.released = true
		s.backend.limiter.Release()
	}
	return nil
}

// headerMetadata 尽力从邮件头提取元数据；头不可解析时全部留空，
// 由入库管线补默认值。
func headerMetadata(raw []byte) (subject, sender, date string) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return "", "", ""
	}

	subject = decodeHeader(msg.Header.Get("Subject"))

	if from, err := mail.ParseAddress(msg.Header.Get("From")); err == nil {
		sender = from.Address
	} else {
		sender = strings.TrimSpace(msg.Header.Get("From"))
	}

	if parsed, err := msg.Header.Date(); err == nil {
		date = parsed.UTC().Format(time.RFC3339)
	}
	return subject, sender, date
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}

func decodeHeader(value string) string {
	if value == "" {
		return value
	}
	decoder := new(mime.WordDecoder)
	decoded, err := decoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

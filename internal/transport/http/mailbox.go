package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	jwtpkg "driftmail/backend/internal/auth/jwt"
	"driftmail/backend/internal/blob"
	"driftmail/backend/internal/domain"
	"driftmail/backend/internal/service"
)

// sessionCookie 会话令牌使用的 Cookie 名。
const sessionCookie = "email_session"

// addressKey 会话中间件写入上下文的地址键。
const addressKey = "mailboxAddress"

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	sessions *service.SessionService
	messages *service.MessageService
	jwt      *jwtpkg.Manager
	log      *zap.Logger
}

// NewHandler 创建 HTTP 处理器。
func NewHandler(sessions *service.SessionService, messages *service.MessageService, jwt *jwtpkg.Manager, log *zap.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		messages: messages,
		jwt:      jwt,
		log:      log,
	}
}

// allocateResponse 分配成功的响应体。
type allocateResponse struct {
	Address   string `json:"address"`
	ExpiresIn int64  `json:"expiresIn"` // 秒
}

// messageItem 邮件列表条目。
type messageItem struct {
	MessageID string `json:"messageId"`
	Subject   string `json:"subject"`
	Sender    string `json:"sender"`
	Date      string `json:"date"`
	BodyRef   string `json:"bodyRef"`
}

// CreateMailbox 分配一个一次性邮箱并下发会话 Cookie。
// POST /v1/mailboxes
func (h *Handler) CreateMailbox(c *gin.Context) {
	address, err := h.sessions.Allocate(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotConfigured):
			h.log.Error("mailbox allocation rejected, service not configured")
			InternalError(c, "service not configured")
		case errors.Is(err, domain.ErrAllocationExhausted):
			InternalError(c, "could not allocate a unique address")
		default:
			h.log.Error("mailbox allocation failed", zap.Error(err))
			InternalError(c, "internal error")
		}
		return
	}

	token, err := h.jwt.Generate(address)
	if err != nil {
		h.log.Error("session token generation failed", zap.Error(err))
		InternalError(c, "internal error")
		return
	}

	ttl := h.sessions.SessionTTL()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, token, int(ttl.Seconds()), "/", "", false, true)

	Created(c, allocateResponse{
		Address:   address,
		ExpiresIn: int64(ttl.Seconds()),
	})
}

// ListMessages 列出当前会话邮箱收到的邮件。
// GET /v1/messages
func (h *Handler) ListMessages(c *gin.Context) {
	address := c.GetString(addressKey)

	records, err := h.messages.List(c.Request.Context(), address)
	if err != nil {
		h.log.Error("message listing failed", zap.String("address", address), zap.Error(err))
		InternalError(c, "internal error")
		return
	}

	items := make([]messageItem, 0, len(records))
	for _, record := range records {
		items = append(items, messageItem{
			MessageID: record.ID,
			Subject:   record.Subject,
			Sender:    record.Sender,
			Date:      record.Date,
			BodyRef:   "/v1/messages/" + record.ID + "/body",
		})
	}

	Success(c, gin.H{
		"address":  address,
		"messages": items,
	})
}

// GetMessageBody 返回一封邮件的渲染正文，原样输出 HTML。
// GET /v1/messages/:id/body
func (h *Handler) GetMessageBody(c *gin.Context) {
	address := c.GetString(addressKey)
	messageID := c.Param("id")

	body, err := h.messages.Body(c.Request.Context(), address, messageID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) || errors.Is(err, blob.ErrNotFound) {
			NotFound(c, "message not found")
			return
		}
		h.log.Error("message body fetch failed",
			zap.String("address", address),
			zap.String("messageId", messageID),
			zap.Error(err),
		)
		InternalError(c, "internal error")
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", body)
}

// SessionAuth 校验会话令牌并把邮箱地址写入上下文。
// 令牌取自 Cookie，无 Cookie 的客户端可改用 X-Session-Token 头。
func (h *Handler) SessionAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(sessionCookie)
		if err != nil || token == "" {
			token = c.GetHeader("X-Session-Token")
		}
		if token == "" {
			Unauthorized(c, "missing session")
			c.Abort()
			return
		}

		claims, err := h.jwt.Validate(token)
		if err != nil {
			Unauthorized(c, "invalid or expired session")
			c.Abort()
			return
		}

		c.Set(addressKey, claims.Email)
		c.Next()
	}
}

package health

import (
	"net/http"

	"github.com/heptiolabs/healthcheck"

	"driftmail/backend/internal/registry"
	"driftmail/backend/internal/storage"
)

// Checker 聚合存储与收件人集合的健康检查。
type Checker struct {
	health healthcheck.Handler
}

// NewChecker 创建健康检查器。
func NewChecker(store storage.Store, reg registry.Registry) *Checker {
	handler := healthcheck.NewHandler()
	handler.AddReadinessCheck("store", store.Health)
	handler.AddReadinessCheck("registry", reg.Health)
	handler.AddLivenessCheck("self", func() error { return nil })

	return &Checker{health: handler}
}

// LiveEndpoint 存活检查处理器。
func (c *Checker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	c.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查处理器。
func (c *Checker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	c.health.ReadyEndpoint(w, r)
}

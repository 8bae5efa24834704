// Package status reports process health: uptime, host load and the
// browser pool's utilisation.
package status

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"consulta-vehicular-go/internal/browser"
	"consulta-vehicular-go/internal/domain/session"
	"consulta-vehicular-go/internal/platform/errors"
	"consulta-vehicular-go/internal/platform/logging"
	httptransport "consulta-vehicular-go/internal/transport/http"
)

type Service struct {
	logger   *logging.Logger
	pool     *browser.Pool
	sessions *session.Registry
	started  time.Time
}

func NewService(logger *logging.Logger, pool *browser.Pool, sessions *session.Registry) (*Service, error) {
	if logger == nil {
		return nil, errors.New(errors.KindConfig, "status.new", "logger is required")
	}
	return &Service{
		logger:   logger,
		pool:     pool,
		sessions: sessions,
		started:  time.Now(),
	}, nil
}

func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.GET("/status", s.handleStatus)
	s.logger.InfoTag("HTTP", "status route registered")
	return nil
}

func (s *Service) handleStatus(c *gin.Context) {
	payload := gin.H{
		"uptime_sec": int64(time.Since(s.started).Seconds()),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		payload["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		payload["mem_used_percent"] = vm.UsedPercent
		payload["mem_total_mb"] = vm.Total / (1 << 20)
	}
	if s.pool != nil {
		payload["browser_pool"] = s.pool.Stats()
	}
	if s.sessions != nil {
		payload["active_sessions"] = s.sessions.Len()
	}

	httptransport.RespondSuccess(c, http.StatusOK, payload, "")
}

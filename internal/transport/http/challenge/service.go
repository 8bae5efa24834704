// Package challenge exposes the manual captcha-solving sessions for the
// licence lookup: a human gets the image, types the answer, and the
// live page behind the session does the rest.
package challenge

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"consulta-vehicular-go/internal/domain/names"
	"consulta-vehicular-go/internal/domain/session"
	"consulta-vehicular-go/internal/platform/config"
	"consulta-vehicular-go/internal/platform/errors"
	"consulta-vehicular-go/internal/platform/logging"
	"consulta-vehicular-go/internal/sites"
	httptransport "consulta-vehicular-go/internal/transport/http"
)

type Service struct {
	cfg      *config.Config
	logger   *logging.Logger
	sites    *sites.Registry
	sessions *session.Registry
}

func NewService(cfg *config.Config, logger *logging.Logger, siteRegistry *sites.Registry, sessions *session.Registry) (*Service, error) {
	if cfg == nil {
		return nil, errors.New(errors.KindConfig, "challenge.new", "config is required")
	}
	if logger == nil {
		return nil, errors.New(errors.KindConfig, "challenge.new", "logger is required")
	}
	if siteRegistry == nil || sessions == nil {
		return nil, errors.New(errors.KindConfig, "challenge.new", "site registry and session registry are required")
	}
	return &Service{cfg: cfg, logger: logger, sites: siteRegistry, sessions: sessions}, nil
}

// Register mounts the manual-session routes on the API group.
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.POST("/licencia/captcha/init", s.handleInit)
	router.POST("/licencia/captcha/submit", s.handleSubmit)
	router.GET("/licencia/captcha/:id/image", s.handleImage)
	s.logger.InfoTag("HTTP", "challenge routes registered")
	return nil
}

type initRequest struct {
	DNI        string `json:"dni"`
	Surname1   string `json:"ap_paterno"`
	Surname2   string `json:"ap_materno"`
	GivenNames string `json:"nombres"`
}

type submitRequest struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"captcha"`
}

func (s *Service) handleInit(c *gin.Context) {
	var req initRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	document := strings.TrimSpace(req.DNI)
	var owner *names.OwnerRecord
	kind := "by-document"
	if document == "" {
		rec := names.OwnerRecord{
			Surname1:   strings.TrimSpace(req.Surname1),
			Surname2:   strings.TrimSpace(req.Surname2),
			GivenNames: strings.TrimSpace(req.GivenNames),
		}
		if rec.Empty() {
			httptransport.RespondError(c, http.StatusBadRequest, "dni or full name required", nil)
			return
		}
		owner = &rec
		kind = "by-name"
	}

	image, flow, params, err := s.sites.OpenLicenciaSession(c.Request.Context(), document, owner)
	if err != nil {
		httptransport.RespondError(c, errors.HTTPStatus(err), errors.PublicMessage(err), nil)
		return
	}

	sess := s.sessions.Create(kind, params, image, flow)
	c.JSON(http.StatusOK, s.sessionPayload(sess.ID, image))
}

func (s *Service) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if req.SessionID == "" {
		httptransport.RespondError(c, http.StatusBadRequest, "session_id is required", nil)
		return
	}

	outcome, err := s.sessions.RecordAnswer(c.Request.Context(), req.SessionID, req.Answer)
	if err != nil {
		httptransport.RespondError(c, errors.HTTPStatus(err), errors.PublicMessage(err), nil)
		return
	}

	if outcome.Accepted {
		c.JSON(http.StatusOK, gin.H{
			"ok":     true,
			"result": outcome.Result,
		})
		return
	}

	// Rejected: the session survives with a fresh image; the client
	// should retry with a new answer.
	payload := s.sessionPayload(req.SessionID, outcome.Image)
	payload["ok"] = false
	payload["need_captcha"] = true
	payload["message"] = "captcha rejected, try again with the refreshed image"
	c.JSON(http.StatusOK, payload)
}

func (s *Service) handleImage(c *gin.Context) {
	sess, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		httptransport.RespondError(c, errors.HTTPStatus(err), errors.PublicMessage(err), nil)
		return
	}
	c.Data(http.StatusOK, "image/png", sess.Image)
}

// sessionPayload is the wire shape shared by init and rejected-submit:
// the image travels inline and by URL.
func (s *Service) sessionPayload(id string, image []byte) gin.H {
	b64 := base64.StdEncoding.EncodeToString(image)
	ttl := time.Duration(s.cfg.Session.TTLSec) * time.Second
	return gin.H{
		"session_id":         id,
		"captcha_png_base64": b64,
		"captcha_data_url":   "data:image/png;base64," + b64,
		"captcha_url":        "/api/licencia/captcha/" + id + "/image",
		"expires_in_sec":     int(ttl.Seconds()),
	}
}

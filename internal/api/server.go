package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"huawei-solar/internal/inverter"
	"huawei-solar/internal/output"
	"huawei-solar/internal/registers"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Querier runs one inverter query. *collector.Collector satisfies it.
type Querier interface {
	Query(selection string) (inverter.Result, error)
	IsCollecting() bool
}

type Server struct {
	router  *gin.Engine
	server  *http.Server
	querier Querier
	port    int
	logger  *zap.Logger
}

type ServerConfig struct {
	Port    int
	Querier Querier
	Logger  *zap.Logger
}

func NewServer(cfg ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(cfg.Logger))

	s := &Server{
		router:  router,
		querier: cfg.Querier,
		port:    cfg.Port,
		logger:  cfg.Logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)

	api := s.router.Group("/api/v1")
	{
		api.GET("/registers", s.registersHandler)
		api.GET("/status-codes", s.statusCodesHandler)
		api.GET("/query", s.queryHandler)
	}
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	s.logger.Info("API server starting", zap.Int("port", s.port))
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"collecting": s.querier.IsCollecting(),
		"timestamp":  time.Now(),
	})
}

type registerResponse struct {
	Name    string `json:"name"`
	Address uint16 `json:"address"`
	Words   uint16 `json:"words"`
	Kind    string `json:"kind"`
	Gain    uint32 `json:"gain"`
	Unit    string `json:"unit,omitempty"`
}

func (s *Server) registersHandler(c *gin.Context) {
	catalog := registers.Catalog()
	resp := make([]registerResponse, 0, len(catalog))
	for _, r := range catalog {
		resp = append(resp, registerResponse{
			Name:    r.Name,
			Address: r.Address,
			Words:   r.Words,
			Kind:    r.Kind.String(),
			Gain:    r.Gain,
			Unit:    r.Unit,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) statusCodesHandler(c *gin.Context) {
	codes := registers.DeviceStatusCodes()
	resp := make([]gin.H, 0, len(codes))
	for _, code := range codes {
		resp = append(resp, gin.H{
			"code": fmt.Sprintf("0x%04X", code.Code),
			"text": code.Text,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// queryHandler reads the selection from the inverter now. ?select defaults to
// all, ?format to json.
func (s *Server) queryHandler(c *gin.Context) {
	selection := c.DefaultQuery("select", inverter.SelectAll)
	format, ok := output.ParseFormat(c.DefaultQuery("format", string(output.FormatJSON)))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid format, use json or pretty_print"})
		return
	}

	res, err := s.querier.Query(selection)
	if err != nil {
		s.logger.Error("Query failed", zap.String("selection", selection), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	if format == output.FormatPretty {
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(output.Pretty(res)))
		return
	}
	c.JSON(http.StatusOK, res)
}

// Package server 提供单页 Web 前端与 JSON API，是 leadscore.Engine 的薄调用方。
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/rushteam/leadscore"
	"github.com/rushteam/leadscore/config"
	"github.com/rushteam/leadscore/history"
	"github.com/rushteam/leadscore/session"
)

const (
	serverReadTimeout  = 30 * time.Second
	serverWriteTimeout = 60 * time.Second
	serverMaxHeader    = 1 << 20
	maxBodyBytes       = 1 << 20
)

//go:embed templates/*
var templateFS embed.FS

// Server 持有 Engine、会话管理器与可选的预测历史
type Server struct {
	cfg      config.ServerConfig
	engine   *leadscore.Engine
	sessions *session.Manager
	history  *history.Store
	router   *mux.Router
	tmpl     *template.Template
}

// New 创建 Server 并注册全部路由。hist 为 nil 表示未启用预测历史。
func New(cfg config.ServerConfig, engine *leadscore.Engine, sessions *session.Manager, hist *history.Store) (*Server, error) {
	if engine == nil {
		return nil, errors.New("server: engine is required")
	}
	if sessions == nil {
		return nil, errors.New("server: session manager is required")
	}
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("server: parse templates: %w", err)
	}
	s := &Server{
		cfg:      cfg,
		engine:   engine,
		sessions: sessions,
		history:  hist,
		router:   mux.NewRouter(),
		tmpl:     tmpl,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(loggingMiddleware)

	// 页面
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
	s.router.HandleFunc("/sample", s.handleLoadSample).Methods("POST")
	s.router.HandleFunc("/reset", s.handleReset).Methods("POST")
	s.router.HandleFunc("/predict", s.handlePredictForm).Methods("POST")
	s.router.HandleFunc("/report.pdf", s.handleSessionReport).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/schema", s.handleSchema).Methods("GET")
	api.HandleFunc("/sample", s.handleSample).Methods("GET")
	api.HandleFunc("/background", s.handleBackground).Methods("GET")
	api.HandleFunc("/predict", s.handlePredict).Methods("POST")
	api.HandleFunc("/report", s.handleReport).Methods("POST")
	api.HandleFunc("/history", s.handleHistory).Methods("GET")
}

// Handler 返回根路由，便于测试与嵌入
func (s *Server) Handler() http.Handler { return s.router }

// Run 启动 HTTP 服务，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	hs := &http.Server{
		Addr:           s.cfg.Addr,
		Handler:        s.router,
		ReadTimeout:    serverReadTimeout,
		WriteTimeout:   serverWriteTimeout,
		MaxHeaderBytes: serverMaxHeader,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	log.WithField("address", s.cfg.Addr).Info("server started")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		log.WithFields(log.Fields{
			"method":  r.Method,
			"path":    r.URL.Path,
			"status":  sw.status,
			"elapsed": time.Since(start),
		}).Debug("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// sessionID 读取会话 cookie，缺失或非法时签发新的会话
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(session.CookieName); err == nil && session.ValidID(c.Value) {
		return c.Value
	}
	id := session.NewID()
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.sessions.TTL() / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// loadSession 读取会话数据，存储不可用时记录日志并以空会话继续
func (s *Server) loadSession(ctx context.Context, id string) *session.Data {
	d, err := s.sessions.Load(ctx, id)
	if err != nil {
		log.WithError(err).WithField("session", id).Warn("load session failed")
		return &session.Data{Values: map[string]any{}}
	}
	return d
}

func (s *Server) saveSession(ctx context.Context, id string, d *session.Data) {
	if err := s.sessions.Save(ctx, id, d); err != nil {
		log.WithError(err).WithField("session", id).Warn("save session failed")
	}
}

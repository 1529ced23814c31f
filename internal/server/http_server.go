package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"alyx/internal/common"
	"alyx/internal/grid"
	"alyx/internal/job"
	"alyx/internal/pipeline"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// JobService 作业提交接口
type JobService interface {
	Submit(userID string, parameters map[string]interface{}) (string, error)
	GetJob(jobID, userID string) (*job.Job, error)
	Cancel(jobID, userID string) bool
	Modify(jobID, userID string, parameters map[string]interface{}) error
	Pause(jobID, userID string) error
	Resume(jobID, userID string) error
	QueueStatus() job.QueueStatusView
}

// ResourceService 资源管理接口
type ResourceService interface {
	Register(id, location string, total common.Resource) (*grid.GridResource, error)
	Deregister(id string) error
	UpdateUtilization(id string, cpu, memory float64) error
	Heartbeat(id string) error
	List() []*grid.GridResource
	Statistics() grid.RegistryStatistics
}

// EventService 事件发布接口
type EventService interface {
	Ingest(events []pipeline.Event) pipeline.Ack
	Stats() pipeline.Stats
}

// HTTPServer 对外 REST 服务
type HTTPServer struct {
	server    *http.Server
	logger    *zap.Logger
	jobs      JobService
	resources ResourceService
	events    EventService
	reporters []common.StatusReporter
	gatherer  prometheus.Gatherer
}

// NewHTTPServer 创建 HTTP 服务器
func NewHTTPServer(jobs JobService, resources ResourceService, events EventService,
	reporters []common.StatusReporter, gatherer prometheus.Gatherer) *HTTPServer {
	return &HTTPServer{
		logger:    common.ComponentLogger("http-server"),
		jobs:      jobs,
		resources: resources,
		events:    events,
		reporters: reporters,
		gatherer:  gatherer,
	}
}

// Router 构建路由
func (s *HTTPServer) Router() *mux.Router {
	router := mux.NewRouter()

	// 添加中间件
	router.Use(s.loggingMiddleware)
	router.Use(s.corsMiddleware)

	v1 := router.PathPrefix("/ws/v1").Subrouter()

	// 作业路由
	jobs := v1.PathPrefix("/jobs").Subrouter()
	jobs.HandleFunc("", s.handleSubmitJob).Methods("POST")
	jobs.HandleFunc("/queue", s.handleQueueStatus).Methods("GET")
	jobs.HandleFunc("/{jobId}", s.handleGetJob).Methods("GET")
	jobs.HandleFunc("/{jobId}", s.handleModifyJob).Methods("PUT")
	jobs.HandleFunc("/{jobId}", s.handleCancelJob).Methods("DELETE")
	jobs.HandleFunc("/{jobId}/pause", s.handlePauseJob).Methods("POST")
	jobs.HandleFunc("/{jobId}/resume", s.handleResumeJob).Methods("POST")

	// 资源路由
	resources := v1.PathPrefix("/resources").Subrouter()
	resources.HandleFunc("", s.handleListResources).Methods("GET")
	resources.HandleFunc("", s.handleRegisterResource).Methods("POST")
	resources.HandleFunc("/{resourceId}", s.handleDeregisterResource).Methods("DELETE")
	resources.HandleFunc("/{resourceId}/utilization", s.handleUpdateUtilization).Methods("PUT")
	resources.HandleFunc("/{resourceId}/heartbeat", s.handleHeartbeat).Methods("POST")

	// 事件发布路由
	v1.HandleFunc("/events", s.handlePublishEvents).Methods("POST")

	// 观测面路由
	v1.HandleFunc("/metrics", s.handleMetricsSnapshot).Methods("GET")
	v1.HandleFunc("/status", s.handleStatus).Methods("GET")
	if s.gatherer != nil {
		router.Path("/metrics").Handler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return router
}

// Start 启动 HTTP 服务器
func (s *HTTPServer) Start(address string, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", address, port),
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 优雅停止 HTTP 服务器
func (s *HTTPServer) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// submitRequest 作业提交请求体
type submitRequest struct {
	UserID     string                 `json:"user_id"`
	Parameters map[string]interface{} `json:"parameters"`
}

// handleSubmitJob 提交作业
func (s *HTTPServer) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var request submitRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, r, common.NewValidationError("body", "invalid JSON", nil))
		return
	}

	jobID, err := s.jobs.Submit(request.UserID, request.Parameters)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{"job_id": jobID})
}

// handleGetJob 查询作业，用户身份取自 X-User-ID 头
func (s *HTTPServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	userID := r.Header.Get("X-User-ID")

	j, err := s.jobs.GetJob(jobID, userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, j)
}

// handleModifyJob 修改排队中作业的参数
func (s *HTTPServer) handleModifyJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	userID := r.Header.Get("X-User-ID")

	var request struct {
		Parameters map[string]interface{} `json:"parameters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, r, common.NewValidationError("body", "invalid JSON", nil))
		return
	}

	if err := s.jobs.Modify(jobID, userID, request.Parameters); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID})
}

// handleCancelJob 取消作业，已终态返回 cancelled=false 而不是错误
func (s *HTTPServer) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	userID := r.Header.Get("X-User-ID")

	cancelled := s.jobs.Cancel(jobID, userID)
	s.writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// handlePauseJob 暂停作业
func (s *HTTPServer) handlePauseJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	userID := r.Header.Get("X-User-ID")

	if err := s.jobs.Pause(jobID, userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID})
}

// handleResumeJob 恢复作业
func (s *HTTPServer) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	userID := r.Header.Get("X-User-ID")

	if err := s.jobs.Resume(jobID, userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID})
}

// handleQueueStatus 队列状态聚合
func (s *HTTPServer) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.jobs.QueueStatus())
}

// registerRequest 资源注册请求体
type registerRequest struct {
	ID       string `json:"id"`
	Location string `json:"location"`
	Cores    int32  `json:"cores"`
	MemoryMB int64  `json:"memory_mb"`
}

// handleRegisterResource 注册资源
func (s *HTTPServer) handleRegisterResource(w http.ResponseWriter, r *http.Request) {
	var request registerRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, r, common.NewValidationError("body", "invalid JSON", nil))
		return
	}

	resource, err := s.resources.Register(request.ID, request.Location,
		common.Resource{Cores: request.Cores, MemoryMB: request.MemoryMB})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, resource)
}

// handleDeregisterResource 注销资源
func (s *HTTPServer) handleDeregisterResource(w http.ResponseWriter, r *http.Request) {
	resourceID := mux.Vars(r)["resourceId"]

	if err := s.resources.Deregister(resourceID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateUtilization 上报资源利用率
func (s *HTTPServer) handleUpdateUtilization(w http.ResponseWriter, r *http.Request) {
	resourceID := mux.Vars(r)["resourceId"]

	var request struct {
		CPU    float64 `json:"cpu_utilization"`
		Memory float64 `json:"memory_utilization"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, r, common.NewValidationError("body", "invalid JSON", nil))
		return
	}

	if err := s.resources.UpdateUtilization(resourceID, request.CPU, request.Memory); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"resource_id": resourceID})
}

// handleHeartbeat 资源心跳
func (s *HTTPServer) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	resourceID := mux.Vars(r)["resourceId"]

	if err := s.resources.Heartbeat(resourceID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"resource_id": resourceID})
}

// handleListResources 资源清单
func (s *HTTPServer) handleListResources(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"resources":  s.resources.List(),
		"statistics": s.resources.Statistics(),
	})
}

// handlePublishEvents 发布事件批次，回执包含排队/内联处理数量与累计发布计数
func (s *HTTPServer) handlePublishEvents(w http.ResponseWriter, r *http.Request) {
	var batch pipeline.BatchMessage
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		s.writeError(w, r, common.NewValidationError("body", "invalid JSON", nil))
		return
	}
	if len(batch.Events) == 0 {
		s.writeError(w, r, common.NewValidationError("events", "cannot be empty", nil))
		return
	}

	ack := s.events.Ingest(batch.Events)
	s.writeJSON(w, http.StatusAccepted, ack)
}

// handleMetricsSnapshot 指标 JSON 快照
func (s *HTTPServer) handleMetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"pipeline":  s.events.Stats(),
		"queue":     s.jobs.QueueStatus(),
		"resources": s.resources.Statistics(),
	})
}

// handleStatus 聚合各子系统状态
func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses := make([]common.ComponentStatus, 0, len(s.reporters))
	healthy := true
	for _, reporter := range s.reporters {
		status := reporter.Status()
		statuses = append(statuses, status)
		healthy = healthy && status.Healthy
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]interface{}{
		"healthy":    healthy,
		"components": statuses,
	})
}

// writeJSON 输出 JSON 响应
func (s *HTTPServer) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeError 错误分类映射到 HTTP 状态码，经由请求范围的日志记录器留痕
func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrInvalidParameters):
		code = http.StatusBadRequest
	case errors.Is(err, common.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, common.ErrInvalidState):
		code = http.StatusConflict
	case errors.Is(err, common.ErrResourceUnavailable):
		code = http.StatusServiceUnavailable
	}

	common.LoggerFromContext(r.Context()).Debug("Request rejected",
		zap.Int("status", code), zap.Error(err))

	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}

// loggingMiddleware 请求日志中间件，为每个请求在上下文中附加带方法与路径的日志记录器
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestLogger := s.logger.With(
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))

		next.ServeHTTP(w, r.WithContext(common.ContextWithLogger(r.Context(), requestLogger)))

		requestLogger.Debug("HTTP request", zap.Duration("duration", time.Since(start)))
	})
}

// corsMiddleware 跨域中间件
func (s *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

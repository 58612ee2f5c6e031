package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/switchctl/switchctl/internal/control"
	"github.com/switchctl/switchctl/internal/model"
	"github.com/switchctl/switchctl/internal/service"
	"github.com/switchctl/switchctl/internal/session"
	"github.com/switchctl/switchctl/pkg/logger"
)

// SwitchService 接口层依赖的交换机门面能力
type SwitchService interface {
	Name() string
	Poll(ctx context.Context) (*model.Snapshot, error)
	Control(ctx context.Context, req service.ControlRequest) error
	ControlMany(ctx context.Context, reqs []service.ControlRequest) error
	Cached() *model.Snapshot
	Status() control.Status
}

// AuditReader 控制审计查询
type AuditReader interface {
	RecentControls(ctx context.Context, limit int) ([]model.ControlAudit, error)
}

// HealthCheck 依赖项健康检查
type HealthCheck func() error

// SwitchHandler 交换机处理器
type SwitchHandler struct {
	sw     SwitchService
	audits AuditReader
	checks map[string]HealthCheck
}

// NewSwitchHandler 创建处理器；audits 可为 nil
func NewSwitchHandler(sw SwitchService, audits AuditReader, checks map[string]HealthCheck) *SwitchHandler {
	return &SwitchHandler{sw: sw, audits: audits, checks: checks}
}

// GetStatistics 采集并返回统计快照
// @Summary 获取交换机统计
// @Description 控制冷却或重启期间返回缓存快照，不访问设备
// @Tags switch
// @Produce json
// @Success 200 {object} SuccessResponse "统计快照"
// @Failure 502 {object} ErrorResponse "设备不可达"
// @Router /api/v1/statistics [get]
func (h *SwitchHandler) GetStatistics(c *gin.Context) {
	snap, err := h.sw.Poll(c.Request.Context())
	if err != nil {
		logger.WithField("request_id", c.GetString("request_id")).Errorf("Statistics request failed: %v", err)
		c.JSON(statusFor(err), ErrorResponse{
			Code:    "POLL_FAILED",
			Message: "采集失败: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "采集成功",
		Data:    snap,
	})
}

// Control 下发控制；请求体为单个对象或对象数组
// @Summary 下发控制
// @Tags switch
// @Accept json
// @Produce json
// @Param request body service.ControlRequest true "控制请求"
// @Success 200 {object} SuccessResponse "已受理"
// @Failure 400 {object} ErrorResponse "请求参数错误"
// @Router /api/v1/control [post]
func (h *SwitchHandler) Control(c *gin.Context) {
	reqs, err := bindControlRequests(c)
	if err != nil {
		logger.Warnf("Invalid control request: %v", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_PARAMS",
			Message: "请求参数无效: " + err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	if len(reqs) == 1 {
		err = h.sw.Control(ctx, reqs[0])
	} else {
		err = h.sw.ControlMany(ctx, reqs)
	}
	if err != nil {
		logger.WithField("request_id", c.GetString("request_id")).Errorf("Control request failed: %v", err)
		c.JSON(statusFor(err), ErrorResponse{
			Code:    "CONTROL_FAILED",
			Message: "控制失败: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "控制已受理",
		Data:    h.sw.Status(),
	})
}

// GetState 控制状态与缓存快照，不访问设备
func (h *SwitchHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "获取状态成功",
		Data: gin.H{
			"device":   h.sw.Name(),
			"control":  h.sw.Status(),
			"snapshot": h.sw.Cached(),
		},
	})
}

// ListAudits 最近的控制审计
func (h *SwitchHandler) ListAudits(c *gin.Context) {
	if h.audits == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "AUDIT_DISABLED",
			Message: "审计库未启用",
		})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	items, err := h.audits.RecentControls(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "QUERY_FAILED",
			Message: "查询失败: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "查询成功",
		Data:    items,
	})
}

// Health 健康检查
// @Summary 健康检查
// @Tags system
// @Produce json
// @Success 200 {object} SuccessResponse "服务正常"
// @Failure 503 {object} ErrorResponse "服务异常"
// @Router /api/v1/health [get]
func (h *SwitchHandler) Health(c *gin.Context) {
	failed := map[string]string{}
	for name, check := range h.checks {
		if err := check(); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    "SERVICE_UNAVAILABLE",
			"message": "依赖异常",
			"data":    failed,
		})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "服务正常",
		Data:    gin.H{"device": h.sw.Name(), "state": h.sw.Status().State},
	})
}

// controlBody 接口层控制请求；value 可为字符串、数字或布尔值
type controlBody struct {
	Property string          `json:"property" binding:"required"`
	Value    json.RawMessage `json:"value"`
}

func (b controlBody) request() (service.ControlRequest, error) {
	req := service.ControlRequest{Property: strings.TrimSpace(b.Property)}
	if req.Property == "" {
		return req, errors.New("property is required")
	}
	raw := bytes.TrimSpace(b.Value)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '"':
		if err := json.Unmarshal(raw, &req.Value); err != nil {
			return req, err
		}
	case raw[0] == '{' || raw[0] == '[':
		return req, errors.New("value must be a scalar")
	default:
		req.Value = string(raw)
	}
	return req, nil
}

func bindControlRequests(c *gin.Context) ([]service.ControlRequest, error) {
	raw, err := c.GetRawData()
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)

	var bodies []controlBody
	if len(raw) > 0 && raw[0] == '[' {
		if err := binding.JSON.BindBody(raw, &bodies); err != nil {
			return nil, err
		}
		if len(bodies) == 0 {
			return nil, service.ErrNoRequests
		}
	} else {
		var body controlBody
		if err := binding.JSON.BindBody(raw, &body); err != nil {
			return nil, err
		}
		bodies = append(bodies, body)
	}

	reqs := make([]service.ControlRequest, 0, len(bodies))
	for _, b := range bodies {
		req, err := b.request()
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNoRequests):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrConnect):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SuccessResponse 成功响应
type SuccessResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

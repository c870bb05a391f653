package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"outreach/backend/internal/domain"
	"outreach/backend/internal/service"
	"outreach/backend/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// 账号错误
	storage.ErrManagerNotFound: "账号未接入系统",
	service.ErrStateInvalid:    "授权 state 无效",
	service.ErrStateExpired:    "授权 state 已过期，请重新发起授权",
	service.ErrNoStateSecret:   "授权功能未配置",

	// 客户名单错误
	storage.ErrClientNotFound: "客户不存在",
	storage.ErrClientExists:   "客户已在名单中",
	domain.ErrInvalidEmail:    "邮箱地址格式无效",
	domain.ErrEmailTooLong:    "邮箱地址过长",
	domain.ErrInvalidStatus:   "客户状态取值无效",

	// 台账错误
	storage.ErrMessageNotFound: "台账中不存在该消息",

	// campaign 错误
	storage.ErrCampaignNotFound: "投递任务不存在",
	service.ErrNoActiveClients:  "名单中没有可发送的客户",
	service.ErrEmptyCampaign:    "主题和正文不能为空",

	// 模板错误
	service.ErrTemplateNotFound: "模板不存在",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	for known, msg := range errorMessages {
		if errors.Is(err, known) {
			return msg
		}
	}
	return err.Error()
}

// respondError 按错误类型选择响应状态码。
func respondError(c *gin.Context, err error) {
	msg := GetErrorMessage(err)
	switch {
	case errors.Is(err, storage.ErrManagerNotFound),
		errors.Is(err, storage.ErrClientNotFound),
		errors.Is(err, storage.ErrMessageNotFound),
		errors.Is(err, storage.ErrCampaignNotFound),
		errors.Is(err, service.ErrTemplateNotFound):
		NotFound(c, msg)
	case errors.Is(err, storage.ErrClientExists):
		Conflict(c, msg)
	case errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, domain.ErrEmailTooLong),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, service.ErrNoActiveClients),
		errors.Is(err, service.ErrEmptyCampaign):
		BadRequest(c, msg)
	case errors.Is(err, service.ErrStateInvalid),
		errors.Is(err, service.ErrStateExpired):
		Unauthorized(c, msg)
	default:
		InternalError(c, MsgInternalError)
	}
}

// 通用错误消息
const (
	MsgInvalidRequest = "请求参数格式错误"
	MsgMissingOwner   = "缺少账号邮箱参数"
	MsgInternalError  = "服务器内部错误，请稍后重试"
)

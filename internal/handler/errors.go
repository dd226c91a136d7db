package handler

import (
	"context"
	"errors"

	"banksystem/internal/service"
	"banksystem/pkg/response"

	"github.com/gin-gonic/gin"
)

// writeError 把业务错误映射为错误码和可操作的提示
// 存储故障只返回通用提示，详情已在 service 层记录日志
func writeError(c *gin.Context, err error) {
	var (
		limitErr   *service.LimitError
		balanceErr *service.BalanceError
		amountErr  *service.AmountError
	)

	switch {
	case errors.As(err, &limitErr):
		response.ErrorWithData(c, response.CodeLimitExceeded, limitErr.Error(), gin.H{
			"tier":      limitErr.Tier,
			"window":    limitErr.Window,
			"limit":     limitErr.Limit,
			"used":      limitErr.Used,
			"requested": limitErr.Requested,
			"remaining": limitErr.Remaining(),
		})
	case errors.As(err, &balanceErr):
		response.ErrorWithData(c, response.CodeBalanceNotEnough, balanceErr.Error(), gin.H{
			"required":  balanceErr.Required,
			"available": balanceErr.Available,
		})
	case errors.As(err, &amountErr):
		response.ErrorWithData(c, response.CodeInvalidAmount, amountErr.Error(), gin.H{
			"amount": amountErr.Amount,
			"min":    amountErr.Min,
			"max":    amountErr.Max,
		})
	case errors.Is(err, service.ErrInvalidAmount):
		response.BusinessError(c, response.CodeInvalidAmount, err.Error())
	case errors.Is(err, service.ErrSenderNotFound):
		response.BusinessError(c, response.CodeSenderNotFound, err.Error())
	case errors.Is(err, service.ErrRecipientNotFound):
		response.BusinessError(c, response.CodeRecipientNotFound, err.Error())
	case errors.Is(err, service.ErrAccountNotFound):
		response.BusinessError(c, response.CodeAccountNotFound, err.Error())
	case errors.Is(err, service.ErrSelfTransfer):
		response.BusinessError(c, response.CodeSelfTransfer, err.Error())
	case errors.Is(err, service.ErrContention):
		response.BusinessError(c, response.CodeContention, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		response.BusinessError(c, response.CodeTimeout, "操作超时，请查询流水确认结果")
	default:
		response.ServerError(c, service.ErrStoreUnavailable.Error())
	}
}

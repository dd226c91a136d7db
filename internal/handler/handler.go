package handler

import (
	"errors"
	"strconv"

	"banksystem/internal/config"
	"banksystem/internal/infrastructure/lock"
	"banksystem/internal/model"
	"banksystem/internal/service"
	"banksystem/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	accountService  *service.AccountService
	transferService *service.TransferService
	fundingService  *service.FundingService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, locker lock.Locker, cfg *config.Config) *Handler {
	return &Handler{
		accountService:  service.NewAccountService(db, cfg),
		transferService: service.NewTransferService(db, locker, cfg),
		fundingService:  service.NewFundingService(db, locker, cfg),
	}
}

// ============================================================
// 账户相关接口
// ============================================================

// OpenAccount 开户
// POST /api/v1/accounts
func (h *Handler) OpenAccount(c *gin.Context) {
	var req service.OpenAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if _, ok := model.ParseTier(req.Tier); !ok {
		response.ParamError(c, "tier 参数错误: "+req.Tier)
		return
	}

	account, err := h.accountService.Open(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, account)
}

// GetBalance 查询当前账户余额
// GET /api/v1/account/balance
func (h *Handler) GetBalance(c *gin.Context) {
	account, err := h.accountService.GetAccount(c.Request.Context(), currentAccountID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"account_number": account.AccountNumber,
		"tier":           account.Tier,
		"balance":        account.Balance,
	})
}

// GetHistory 查询流水，按时间倒序
// GET /api/v1/account/history?limit=20
func (h *Handler) GetHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 200 {
		response.ParamError(c, "limit 参数错误，范围 1-200")
		return
	}

	entries, err := h.accountService.History(c.Request.Context(), currentAccountID(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":  entries,
		"limit": limit,
	})
}

// Reconcile 对账：初始余额 + 入账 - 出账 是否等于当前余额
// GET /api/v1/account/reconcile
func (h *Handler) Reconcile(c *gin.Context) {
	report, err := h.accountService.Reconcile(c.Request.Context(), currentAccountID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, report)
}

// ============================================================
// 资金变动接口
// ============================================================

// Fund 充值
// POST /api/v1/account/fund
func (h *Handler) Fund(c *gin.Context) {
	var req service.FundingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	balance, err := h.fundingService.Fund(c.Request.Context(), currentAccountID(c), req.Amount, req.Method)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"balance": balance})
}

// Withdraw 提现
// POST /api/v1/account/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	var req service.FundingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	balance, err := h.fundingService.Withdraw(c.Request.Context(), currentAccountID(c), req.Amount, req.Method)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"balance": balance})
}

// Transfer 转账，转出账户为当前身份对应的账户
// POST /api/v1/transfer
//
// 【关键点】转账是整个系统最核心的操作，需要保证：
// 1. 原子性：双方余额、两条流水、通知消息同时成功或同时失败
// 2. 并发安全：涉及同一账户的操作串行，余额永不为负
// 3. 限额：按账户等级校验日/月累计出账
func (h *Handler) Transfer(c *gin.Context) {
	var req service.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	sender, err := h.accountService.GetAccount(c.Request.Context(), currentAccountID(c))
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			err = service.ErrSenderNotFound
		}
		writeError(c, err)
		return
	}
	req.SenderNumber = sender.AccountNumber

	result, err := h.transferService.Transfer(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

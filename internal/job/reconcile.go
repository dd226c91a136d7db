package job

import (
	"context"

	"banksystem/internal/repository"
	"banksystem/internal/service"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReconcileJob 定期核对每个账户：初始余额 + 入账 - 出账 是否等于当前余额
type ReconcileJob struct {
	accountRepo *repository.AccountRepository
	accounts    *service.AccountService
	batchSize   int
}

func NewReconcileJob(db *gorm.DB, accounts *service.AccountService) *ReconcileJob {
	return &ReconcileJob{
		accountRepo: repository.NewAccountRepository(db),
		accounts:    accounts,
		batchSize:   200,
	}
}

// ReconcileSummary 一轮对账的汇总
type ReconcileSummary struct {
	Checked      int
	Drifted      []*service.ReconcileReport
	TotalBalance int64
}

// Schedule 按 cron 表达式注册到调度器，支持 "@every 10m" 这类描述符
func (j *ReconcileJob) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		if _, err := j.Run(context.Background()); err != nil {
			logrus.WithError(err).Error("[ReconcileJob] 对账失败")
		}
	})
}

// Run 分批遍历全部账户，发现不一致时记录错误日志
func (j *ReconcileJob) Run(ctx context.Context) (*ReconcileSummary, error) {
	summary := &ReconcileSummary{}

	var afterID int64
	for {
		ids, err := j.accountRepo.ListIDsAfter(ctx, afterID, j.batchSize)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			report, err := j.accounts.Reconcile(ctx, id)
			if err != nil {
				return nil, err
			}
			summary.Checked++
			if !report.Consistent {
				summary.Drifted = append(summary.Drifted, report)
				logrus.WithFields(logrus.Fields{
					"account":  report.AccountNumber,
					"expected": report.Expected,
					"balance":  report.Balance,
					"seed":     report.Seed,
					"credits":  report.Credits,
					"debits":   report.Debits,
				}).Error("[ReconcileJob] 账户余额与流水不一致")
			}
		}
		afterID = ids[len(ids)-1]
	}

	total, err := j.accountRepo.SumBalances(ctx)
	if err != nil {
		return nil, err
	}
	summary.TotalBalance = total

	logrus.WithFields(logrus.Fields{
		"checked": summary.Checked,
		"drifted": len(summary.Drifted),
		"total":   total,
	}).Info("[ReconcileJob] 对账完成")
	return summary, nil
}

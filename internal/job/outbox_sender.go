package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"banksystem/internal/config"
	"banksystem/internal/infrastructure/notify"
	"banksystem/internal/model"
	"banksystem/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EventPublisher 账务事件的投递目标，生产环境为 *mq.Publisher
type EventPublisher interface {
	Publish(topic, key, value string) error
}

var errNoPublisher = errors.New("未配置事件投递通道")

// OutboxSender 轮询 outbox 表并投递消息
// notify.email 主题交给 Notifier 发邮件，其余主题发往 Kafka；
// 投递失败只累加重试次数，达到上限后标记为 FAILED，不影响已提交的交易
type OutboxSender struct {
	outboxRepo    *repository.OutboxRepository
	notifier      notify.Notifier
	publisher     EventPublisher
	stopCh        chan struct{}
	interval      time.Duration
	batchSize     int
	maxRetryCount int
}

func NewOutboxSender(db *gorm.DB, cfg *config.Config, notifier notify.Notifier, publisher EventPublisher) *OutboxSender {
	return &OutboxSender{
		outboxRepo:    repository.NewOutboxRepository(db),
		notifier:      notifier,
		publisher:     publisher,
		stopCh:        make(chan struct{}),
		interval:      cfg.Business.OutboxInterval,
		batchSize:     cfg.Business.OutboxBatchSize,
		maxRetryCount: cfg.Business.MaxRetryCount,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	logrus.Info("[OutboxSender] 消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			logrus.Info("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		logrus.WithError(err).Error("[OutboxSender] 查询消息失败")
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) deliver(ctx context.Context, msg *model.OutboxMessage) error {
	if msg.Topic == model.TopicEmailNotification {
		var n notify.Notification
		if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
			return fmt.Errorf("解析通知失败: %w", err)
		}
		return s.notifier.NotifyTransaction(ctx, n)
	}

	if s.publisher == nil {
		return errNoPublisher
	}
	return s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload)
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	fields := logrus.Fields{"id": msg.ID, "topic": msg.Topic, "key": msg.MessageKey}

	err := s.deliver(ctx, msg)
	if err == nil {
		if updateErr := s.outboxRepo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			logrus.WithFields(fields).WithError(updateErr).Error("[OutboxSender] 更新消息状态失败")
		} else {
			logrus.WithFields(fields).Debug("[OutboxSender] 消息发送成功")
		}
		return
	}

	logrus.WithFields(fields).WithError(err).Warn("[OutboxSender] 消息发送失败")

	if msg.RetryCount+1 >= s.maxRetryCount {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			logrus.WithFields(fields).WithError(err).Error("[OutboxSender] 标记消息失败状态失败")
		} else {
			logrus.WithFields(fields).Error("[OutboxSender] 消息超过最大重试次数，标记为失败")
		}
		return
	}

	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		logrus.WithFields(fields).WithError(err).Error("[OutboxSender] 增加重试次数失败")
	}
}

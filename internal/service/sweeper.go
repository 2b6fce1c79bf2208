package service

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/vedran77/pulsechat/internal/metrics"
	"go.uber.org/zap"
)

// MuteSweeper periodically clears expired mutes on a cron schedule.
type MuteSweeper struct {
	chatState *ChatStateService
	cronExpr  string
	log       *zap.Logger
}

func NewMuteSweeper(chatState *ChatStateService, cronExpr string, log *zap.Logger) (*MuteSweeper, error) {
	if cronExpr == "" {
		cronExpr = "* * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid mute sweep cron expression: %s", cronExpr)
	}
	return &MuteSweeper{chatState: chatState, cronExpr: cronExpr, log: log}, nil
}

// Run blocks until ctx is cancelled.
func (m *MuteSweeper) Run(ctx context.Context) {
	m.log.Info("mute_sweeper_started", zap.String("cron", m.cronExpr))
	for {
		next, err := gronx.NextTickAfter(m.cronExpr, time.Now().UTC(), false)
		if err != nil {
			m.log.Error("mute_sweeper_nexttick_failed", zap.Error(err))
			next = time.Now().Add(30 * time.Second)
		}

		select {
		case <-ctx.Done():
			m.log.Info("mute_sweeper_stopping")
			return
		case <-time.After(time.Until(next)):
			m.RunOnce(ctx)
		}
	}
}

func (m *MuteSweeper) RunOnce(ctx context.Context) {
	n, err := m.chatState.ExpireMutes(ctx)
	if err != nil {
		m.log.Error("mute_sweep_failed", zap.Error(err))
		return
	}
	if n > 0 {
		metrics.MutesExpired.Add(float64(n))
		m.log.Info("mutes_expired", zap.Int64("count", n))
	}
}

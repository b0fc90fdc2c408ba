package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Housekeeper periodically evicts conversations that went idle.
type Housekeeper struct {
	chat     *ChatService
	schedule string
	ttl      time.Duration
	cron     *cron.Cron
	logger   logrus.FieldLogger
}

func NewHousekeeper(chat *ChatService, schedule string, ttl time.Duration, logger logrus.FieldLogger) *Housekeeper {
	return &Housekeeper{chat: chat, schedule: schedule, ttl: ttl, logger: logger}
}

// Start schedules the job. A zero ttl disables eviction.
func (h *Housekeeper) Start() error {
	if h.ttl <= 0 {
		h.logger.Info("conversation eviction disabled")
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(h.schedule, func() { h.RunOnce() }); err != nil {
		return err
	}
	c.Start()
	h.cron = c
	h.logger.Infof("conversation eviction scheduled %q, ttl %v", h.schedule, h.ttl)
	return nil
}

// Stop waits for a running job to finish.
func (h *Housekeeper) Stop() context.Context {
	if h.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return h.cron.Stop()
}

func (h *Housekeeper) RunOnce() int {
	startTime := time.Now()
	h.logger.Infof("[%s] Start scheduled task EvictIdle", "scheduled task")

	evicted, err := h.chat.EvictIdle(h.ttl)
	if err != nil {
		h.logger.Warnf("[%s] EvictIdle error, %s", "scheduled task", err)
		return 0
	}

	h.logger.Infof("[%s] Finished scheduled task EvictIdle, %d evicted, cost %v", "scheduled task", len(evicted), time.Since(startTime))
	return len(evicted)
}

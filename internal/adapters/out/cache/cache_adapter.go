package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/suchimauz/clinic-workflow-engine/internal/config"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/domain"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/ports/out"
	"github.com/suchimauz/clinic-workflow-engine/internal/utils"
)

var _ out.CachePort = (*CacheAdapter)(nil)

// Ключ кэша дневных списков: врач + календарный день
type dayQueueKey struct {
	DoctorID uuid.UUID
	Day      string
}

type feeCatalogCache struct {
	fees      []domain.ExaminationFee
	timestamp time.Time
	ttl       time.Duration
}

type CacheAdapter struct {
	dayQueueCache   *lru.Cache[dayQueueKey, []domain.Appointment]
	feeCatalogCache *feeCatalogCache
	mu              sync.RWMutex
	logger          out.LoggerPort
}

func NewCacheAdapter(cfg *config.Config, logger out.LoggerPort) (*CacheAdapter, error) {
	if !cfg.Cache.Enabled {
		logger.Info("cache.disabled", out.LogFields{})
		return nil, nil
	}

	dayQueueCache, err := lru.New[dayQueueKey, []domain.Appointment](cfg.Cache.DayQueueSize)
	if err != nil {
		logger.Error("cache.day_queue.init_failed", out.LogFields{
			"error": err.Error(),
			"size":  cfg.Cache.DayQueueSize,
		})
		return nil, err
	}

	return &CacheAdapter{
		dayQueueCache: dayQueueCache,
		feeCatalogCache: &feeCatalogCache{
			ttl: cfg.Cache.FeeCatalogTTL,
		},
		logger: logger.WithModule("CacheAdapter"),
	}, nil
}

func dayKey(doctorID uuid.UUID, day time.Time) dayQueueKey {
	return dayQueueKey{
		DoctorID: doctorID,
		Day:      utils.StartCurrentDay(day).Format("2006-01-02"),
	}
}

func (c *CacheAdapter) GetDayAppointments(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]domain.Appointment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	appointments, exists := c.dayQueueCache.Get(dayKey(doctorID, day))
	if !exists {
		c.logger.Debug("cache.day_queue.miss", out.LogFields{
			"doctorId": doctorID,
			"day":      day.Format("2006-01-02"),
		})
		return nil, false
	}

	c.logger.Debug("cache.day_queue.hit", out.LogFields{
		"doctorId": doctorID,
		"day":      day.Format("2006-01-02"),
		"count":    len(appointments),
	})
	return appointments, true
}

func (c *CacheAdapter) StoreDayAppointments(ctx context.Context, doctorID uuid.UUID, day time.Time, appointments []domain.Appointment) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dayQueueCache.Add(dayKey(doctorID, day), appointments)
}

// Любое изменение записи инвалидирует весь день: и список конкретного врача,
// и общий список по всем врачам
func (c *CacheAdapter) InvalidateDay(ctx context.Context, day time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dayStr := utils.StartCurrentDay(day).Format("2006-01-02")
	for _, key := range c.dayQueueCache.Keys() {
		if key.Day == dayStr {
			c.dayQueueCache.Remove(key)
		}
	}

	c.logger.Debug("cache.day_queue.invalidated", out.LogFields{
		"day": dayStr,
	})
}

// Кэширование каталога стоимостей осмотра

func (c *CacheAdapter) GetFeeCatalog(ctx context.Context) ([]domain.ExaminationFee, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.feeCatalogCache.fees == nil || time.Since(c.feeCatalogCache.timestamp) > c.feeCatalogCache.ttl {
		return nil, false
	}

	return c.feeCatalogCache.fees, true
}

func (c *CacheAdapter) StoreFeeCatalog(ctx context.Context, fees []domain.ExaminationFee) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.feeCatalogCache.fees = fees
	c.feeCatalogCache.timestamp = time.Now()
}

func (c *CacheAdapter) InvalidateFeeCatalog(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.feeCatalogCache.fees = nil
	c.feeCatalogCache.timestamp = time.Time{}
}

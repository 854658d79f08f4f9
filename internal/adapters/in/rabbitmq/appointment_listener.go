package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suchimauz/clinic-workflow-engine/internal/config"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/domain"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/json_types"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/ports/in"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/ports/out"
)

// Слушатель событий записей на прием от внешних систем клиники (регистратура,
// портал пациента). Сервис на событие реагирует инвалидацией кэша дня и, для
// части событий, внеочередным проходом авто-отмены.
type AppointmentEventListener struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	useCase in.AppointmentUseCase
	cache   out.CachePort
	cfg     *config.Config
	logger  out.LoggerPort
}

type EventType string

const (
	EventTypeBooked    EventType = "booked"
	EventTypeCancelled EventType = "cancelled"
	EventTypeUpdated   EventType = "updated"
)

type AppointmentEventMessage struct {
	AppointmentID string              `json:"appointmentId"`
	Date          json_types.DateTime `json:"date"`
}

func NewAppointmentEventListener(useCase in.AppointmentUseCase, cache out.CachePort,
	cfg *config.Config, logger out.LoggerPort) (*AppointmentEventListener, error) {
	if !cfg.RabbitMQ.Enabled {
		logger.Info("rabbitmq.disabled", out.LogFields{
			"message": "RabbitMQ is disabled, listener will not be started",
		})
		return nil, nil
	}

	conn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Error("rabbitmq.connect.failed", out.LogFields{
			"error": err.Error(),
			"url":   cfg.RabbitMQ.URL,
		})
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		logger.Error("rabbitmq.channel.failed", out.LogFields{
			"error": err.Error(),
		})
		return nil, err
	}

	return &AppointmentEventListener{
		conn:    conn,
		channel: channel,
		useCase: useCase,
		cache:   cache,
		cfg:     cfg,
		logger:  logger.WithModule("AppointmentEventListener"),
	}, nil
}

func (l *AppointmentEventListener) Start(ctx context.Context) error {
	queue, err := l.channel.QueueDeclare(
		l.cfg.RabbitMQ.Queue,
		true,  // durable
		true,  // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return err
	}
	err = l.channel.QueueBind(
		queue.Name,
		l.cfg.RabbitMQ.Bind,
		l.cfg.RabbitMQ.Exchange,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	msgs, err := l.channel.Consume(
		queue.Name,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					l.logger.Warn("rabbitmq.consumer.channel_closed", out.LogFields{
						"queue": queue.Name,
					})
					return
				}
				if err := l.processMessage(ctx, msg); err != nil {
					l.logger.Error("rabbitmq.process_message.failed", out.LogFields{
						"routingKey": msg.RoutingKey,
						"error":      err.Error(),
					})
					msg.Nack(false, false)
					continue
				}
				msg.Ack(false)
			}
		}
	}()

	l.logger.Info("appointment.queue.started", out.LogFields{
		"queue":    queue.Name,
		"binding":  l.cfg.RabbitMQ.Bind,
		"exchange": l.cfg.RabbitMQ.Exchange,
	})
	return nil
}

func (l *AppointmentEventListener) processMessage(ctx context.Context, msg amqp.Delivery) error {
	eventType, err := l.parseEventRoutingKey(msg)
	if err != nil {
		return err
	}

	var msgJson AppointmentEventMessage
	if err := json.Unmarshal(msg.Body, &msgJson); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	l.logger.Debug("appointment.message.received", out.LogFields{
		"appointmentId": msgJson.AppointmentID,
		"eventType":     eventType,
	})

	// Любое внешнее изменение записи делает кэш дня недостоверным
	if l.cache != nil && !msgJson.Date.Date.IsZero() {
		l.cache.InvalidateDay(ctx, msgJson.Date.Date)
	}

	// Новая или перенесенная запись может сразу оказаться опоздавшей
	if eventType == EventTypeBooked || eventType == EventTypeUpdated {
		report, err := l.useCase.SweepLate(ctx, domain.SystemActor())
		if err != nil {
			l.logger.Error("appointment.message.sweep_failed", out.LogFields{
				"appointmentId": msgJson.AppointmentID,
				"error":         err.Error(),
			})
			return nil
		}
		if report.Swept > 0 {
			l.logger.Info("appointment.message.swept", out.LogFields{
				"swept":   report.Swept,
				"skipped": report.Skipped,
			})
		}
	}

	return nil
}

// Пример routingKey:
// appointment.booked
// appointment.cancelled
// appointment.updated
func (l *AppointmentEventListener) parseEventRoutingKey(msg amqp.Delivery) (EventType, error) {
	parts := strings.Split(msg.RoutingKey, ".")
	if len(parts) < 2 || parts[0] != "appointment" {
		return "", fmt.Errorf("invalid routing key: %s", msg.RoutingKey)
	}
	return EventType(parts[len(parts)-1]), nil
}

func (l *AppointmentEventListener) Stop() error {
	if l == nil || l.channel == nil {
		return nil
	}

	if err := l.channel.Close(); err != nil {
		return err
	}
	return l.conn.Close()
}

// Пакет events — события жизненного цикла аудиофайлов.
//
// События публикуются после завершения операции и носят уведомительный
// характер: ошибка публикации не отменяет загрузку, замену или удаление.
// При пустом AS_KAFKA_BROKERS используется NopPublisher.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Type — тип события.
type Type string

const (
	TypeUploaded Type = "audio.uploaded"
	TypeReplaced Type = "audio.replaced"
	TypeDeleted  Type = "audio.deleted"
)

// Event — сообщение о изменении аудиофайла.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	FileID     int64     `json:"file_id"`
	OwnerID    int64     `json:"owner_id"`
	Filename   string    `json:"filename,omitempty"`
	BlobHandle string    `json:"blob_handle"`
	Size       int64     `json:"size"`
	At         time.Time `json:"at"`
}

// Publisher — публикация событий.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

var publishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "as_events_published_total",
		Help: "Количество опубликованных событий аудиофайлов",
	},
	[]string{"type", "result"},
)

// NopPublisher — публикация отключена.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// messageWriter — часть kafka.Writer, используемая публикатором.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher — публикация событий в топик Kafka.
// Ключ сообщения — ID файла: события одного файла попадают в одну партицию
// и читаются в порядке публикации.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher создаёт публикатор для указанных брокеров и топика.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			MaxAttempts:            3,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish сериализует событие в JSON и отправляет его.
// Пустые ID и At заполняются автоматически.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.FileID, 10)),
		Value: value,
		Time:  ev.At,
	})
	if err != nil {
		publishedTotal.WithLabelValues(string(ev.Type), "error").Inc()
		return fmt.Errorf("ошибка публикации события %s: %w", ev.Type, err)
	}
	publishedTotal.WithLabelValues(string(ev.Type), "success").Inc()
	return nil
}

// Close сбрасывает буфер и закрывает соединения.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

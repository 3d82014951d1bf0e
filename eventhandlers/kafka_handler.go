package eventhandlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"videoHighlights/core"
)

// VideoProcessor 处理单个视频，由 HighlightPipeline 实现
type VideoProcessor interface {
	ProcessVideo(ctx context.Context, path string) (int64, []core.Highlight, error)
}

// MessageReader kafka.Reader 中用到的方法
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaHandler 消费视频入库消息，每条消息处理一个视频
type KafkaHandler struct {
	Reader    MessageReader
	Processor VideoProcessor
	// retryDelay 读取失败后的等待时间
	retryDelay time.Duration
}

func NewKafkaHandler(brokers []string, topic, groupID string, processor VideoProcessor) *KafkaHandler {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &KafkaHandler{Reader: reader, Processor: processor, retryDelay: time.Second}
}

// Start 阻塞消费直到 ctx 取消；处理完成后才提交 offset
func (kh *KafkaHandler) Start(ctx context.Context) error {
	defer kh.Reader.Close()
	for {
		m, err := kh.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[kafka] error reading message: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(kh.retryDelay):
			}
			continue
		}
		log.Printf("[kafka] received message at offset %d: %s", m.Offset, string(m.Value))
		kh.processMessage(ctx, m.Value)
		if ctx.Err() != nil {
			return nil
		}
		if err := kh.Reader.CommitMessages(ctx, m); err != nil {
			log.Printf("[kafka] commit offset %d failed: %v", m.Offset, err)
		}
	}
}

func (kh *KafkaHandler) processMessage(ctx context.Context, value []byte) {
	path, err := ParseIngestMessage(value)
	if err != nil {
		log.Printf("[kafka] invalid message: %v", err)
		return
	}
	videoID, highlights, err := kh.Processor.ProcessVideo(ctx, path)
	if err != nil {
		log.Printf("[kafka] processing %s failed: %v", path, err)
		return
	}
	log.Printf("[kafka] processed %s as video %d with %d highlights", path, videoID, len(highlights))
}

var errEmptyMessage = errors.New("empty message")

// ParseIngestMessage 消息体可以是纯文本路径，也可以是 {"video_path": "..."}
func ParseIngestMessage(value []byte) (string, error) {
	text := strings.TrimSpace(string(value))
	if text == "" {
		return "", errEmptyMessage
	}
	if strings.HasPrefix(text, "{") {
		var msg struct {
			VideoPath string `json:"video_path"`
		}
		if err := json.Unmarshal([]byte(text), &msg); err != nil {
			return "", fmt.Errorf("decode json message: %w", err)
		}
		if strings.TrimSpace(msg.VideoPath) == "" {
			return "", fmt.Errorf("video_path missing: %w", errEmptyMessage)
		}
		return strings.TrimSpace(msg.VideoPath), nil
	}
	return text, nil
}

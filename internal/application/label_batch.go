package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"txsentry/internal/domain"
	"txsentry/internal/streaming"
)

type LabelRepository interface {
	UpsertLabels(ctx context.Context, labels []domain.AutomatedLabel) error
}

type Committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// LabelBatch accumulates automated-label messages for the registry. The newest label per
// address wins; offsets are committed only after the labels are stored.
type LabelBatch struct {
	labels    []domain.AutomatedLabel
	index     map[string]int
	messages  []kafka.Message
	minOffset map[int]int64
	maxOffset map[int]int64
}

func NewLabelBatch() *LabelBatch {
	return &LabelBatch{
		index:     make(map[string]int),
		minOffset: make(map[int]int64),
		maxOffset: make(map[int]int64),
	}
}

func (b *LabelBatch) Add(msg streaming.Message, kafkaMsg kafka.Message) {
	if msg.Type == streaming.MessageTypeAutomatedLabel {
		label := msg.AutomatedLabel()
		label.Address = strings.ToLower(label.Address)
		if i, ok := b.index[label.Address]; ok {
			if !label.UpdatedAt.Before(b.labels[i].UpdatedAt) {
				b.labels[i] = label
			}
		} else {
			b.index[label.Address] = len(b.labels)
			b.labels = append(b.labels, label)
		}
	}

	b.messages = append(b.messages, kafkaMsg)

	partition := kafkaMsg.Partition
	offset := kafkaMsg.Offset
	if lo, ok := b.minOffset[partition]; !ok || offset < lo {
		b.minOffset[partition] = offset
	}
	if hi, ok := b.maxOffset[partition]; !ok || offset > hi {
		b.maxOffset[partition] = offset
	}
}

func (b *LabelBatch) Len() int {
	return len(b.messages)
}

// LabelCount is the number of distinct addresses pending.
func (b *LabelBatch) LabelCount() int {
	return len(b.labels)
}

func (b *LabelBatch) Flush(ctx context.Context, repo LabelRepository, committer Committer) error {
	if b.Len() == 0 {
		return nil
	}

	start := time.Now()

	if len(b.labels) > 0 {
		if err := repo.UpsertLabels(ctx, b.labels); err != nil {
			return fmt.Errorf("failed to store labels: %w", err)
		}
	}

	if err := committer.CommitMessages(ctx, b.messages...); err != nil {
		return fmt.Errorf("failed to commit kafka messages: %w", err)
	}

	slog.Info("flushed label batch",
		"count", b.Len(),
		"labels", len(b.labels),
		"partitions", len(b.minOffset),
		"duration", time.Since(start),
	)

	b.Reset()
	return nil
}

func (b *LabelBatch) Reset() {
	b.labels = b.labels[:0]
	b.messages = b.messages[:0]
	clear(b.index)
	clear(b.minOffset)
	clear(b.maxOffset)
}

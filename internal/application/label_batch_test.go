package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"txsentry/internal/domain"
	"txsentry/internal/streaming"
)

type mockLabelRepo struct {
	labels []domain.AutomatedLabel
	err    error
}

func (m *mockLabelRepo) UpsertLabels(ctx context.Context, labels []domain.AutomatedLabel) error {
	if m.err != nil {
		return m.err
	}
	m.labels = append(m.labels, labels...)
	return nil
}

type mockCommitter struct {
	committed []kafka.Message
}

func (m *mockCommitter) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.committed = append(m.committed, msgs...)
	return nil
}

func labelMessage(addr, label string, at time.Time) streaming.Message {
	return streaming.Message{
		Type:      streaming.MessageTypeAutomatedLabel,
		Chain:     "eth",
		Address:   addr,
		Label:     label,
		Source:    LabelSourceHeuristic,
		CreatedAt: at,
	}
}

func TestLabelBatch_AddAndFlush(t *testing.T) {
	batch := NewLabelBatch()
	repo := &mockLabelRepo{}
	committer := &mockCommitter{}
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	batch.Add(labelMessage("0xAAA", "mev_bot", t0), kafka.Message{Offset: 1})
	batch.Add(labelMessage("0xbbb", "mev_bot", t0), kafka.Message{Offset: 2})
	// Newer label for the same address replaces the first one.
	batch.Add(labelMessage("0xaaa", "market_maker", t0.Add(time.Minute)), kafka.Message{Offset: 3})
	// Finding reports are committed but not stored.
	batch.Add(streaming.Message{Type: streaming.MessageTypeFindingReport, Chain: "eth", Address: "0xccc", AnalysisID: "x"}, kafka.Message{Offset: 4})

	if batch.Len() != 4 {
		t.Errorf("expected batch len 4, got %d", batch.Len())
	}

	if err := batch.Flush(ctx, repo, committer); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	if len(repo.labels) != 2 {
		t.Fatalf("expected 2 labels, got %d", len(repo.labels))
	}
	if repo.labels[0].Address != "0xaaa" || repo.labels[0].Label != "market_maker" {
		t.Errorf("unexpected first label %+v", repo.labels[0])
	}
	if repo.labels[1].Address != "0xbbb" {
		t.Errorf("unexpected second label %+v", repo.labels[1])
	}
	if len(committer.committed) != 4 {
		t.Errorf("expected 4 committed messages, got %d", len(committer.committed))
	}
	if batch.Len() != 0 {
		t.Errorf("expected batch len 0 after reset, got %d", batch.Len())
	}
}

func TestLabelBatch_StaleLabelIgnored(t *testing.T) {
	batch := NewLabelBatch()
	repo := &mockLabelRepo{}
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	batch.Add(labelMessage("0xaaa", "market_maker", t0.Add(time.Hour)), kafka.Message{Offset: 1})
	batch.Add(labelMessage("0xaaa", "mev_bot", t0), kafka.Message{Offset: 2})

	if err := batch.Flush(context.Background(), repo, &mockCommitter{}); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if len(repo.labels) != 1 || repo.labels[0].Label != "market_maker" {
		t.Fatalf("expected the newer label to survive, got %+v", repo.labels)
	}
}

func TestLabelBatch_FlushErrorKeepsOffsets(t *testing.T) {
	batch := NewLabelBatch()
	repo := &mockLabelRepo{err: errors.New("db down")}
	committer := &mockCommitter{}

	batch.Add(labelMessage("0xaaa", "mev_bot", time.Now()), kafka.Message{Offset: 7})

	if err := batch.Flush(context.Background(), repo, committer); err == nil {
		t.Fatal("expected flush error")
	}
	if len(committer.committed) != 0 {
		t.Errorf("offsets must not be committed when storing fails")
	}
	if batch.Len() != 1 {
		t.Errorf("batch should be kept for retry, len %d", batch.Len())
	}
}

func TestLabelBatch_EmptyFlush(t *testing.T) {
	if err := NewLabelBatch().Flush(context.Background(), &mockLabelRepo{}, &mockCommitter{}); err != nil {
		t.Fatalf("empty flush: %v", err)
	}
}

package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/aitutor/pdf-tutor/engine/domain"
	"github.com/aitutor/pdf-tutor/pkg/natsutil"
)

const (
	// ChunkSubject is the NATS subject for chunk jobs.
	ChunkSubject = "tutor.chunk"
	// DLQSubject is the dead letter queue subject for failed jobs.
	DLQSubject = "tutor.chunk.dlq"
	// MaxRetries before sending to DLQ.
	MaxRetries = 3
)

// ChunkJob asks for a document to be (re)chunked.
type ChunkJob struct {
	DocumentID string `json:"doc_id"`
}

// Chunker runs one chunking job.
type Chunker interface {
	Chunk(ctx context.Context, docID string) domain.ChunkReport
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Job     ChunkJob `json:"job"`
	Error   string   `json:"error"`
	Retries int      `json:"retries"`
}

// StartConsumer subscribes to ChunkSubject and runs each job with retry and
// DLQ support. Jobs sent as requests get their ChunkReport as the reply.
// Messages are handled one at a time, so re-chunks routed through one
// subscription never overlap.
func StartConsumer(nc *nats.Conn, c Chunker, log *slog.Logger) (*nats.Subscription, error) {
	if log == nil {
		log = slog.Default()
	}
	onBad := func(_ *nats.Msg, err error) {
		log.Error("chunk job: unmarshal failed", "error", err)
	}

	return natsutil.Subscribe(nc, ChunkSubject, func(ctx context.Context, d natsutil.Delivery[ChunkJob]) {
		job := d.Value
		report := c.Chunk(ctx, job.DocumentID)
		if err := natsutil.Respond(d.Msg, report); err != nil {
			log.Warn("chunk job: reply failed", "doc_id", job.DocumentID, "error", err)
		}
		if report.Success {
			return
		}

		retries := d.Attempt + 1
		log.Error("chunk job failed",
			"error", report.Error,
			"doc_id", job.DocumentID,
			"retry", retries,
		)

		// A missing document will not appear on retry.
		if retries >= MaxRetries || report.Error == MsgDocumentNotFound {
			dlq := dlqMessage{Job: job, Error: report.Error, Retries: retries}
			if err := natsutil.Publish(ctx, nc, DLQSubject, dlq); err != nil {
				log.Error("chunk job: DLQ publish failed", "error", err)
			}
			return
		}
		if err := natsutil.PublishAttempt(ctx, nc, ChunkSubject, job, retries); err != nil {
			log.Error("chunk job: retry publish failed", "error", err)
		}
	}, onBad)
}

// Enqueue publishes a chunk job without waiting for it.
func Enqueue(ctx context.Context, nc *nats.Conn, docID string) error {
	if err := domain.ValidateID("doc_id", docID); err != nil {
		return err
	}
	return natsutil.Publish(ctx, nc, ChunkSubject, ChunkJob{DocumentID: docID})
}

// ChunkAndWait sends a chunk job and waits for its report. ctx bounds the wait.
func ChunkAndWait(ctx context.Context, nc *nats.Conn, docID string) (domain.ChunkReport, error) {
	if err := domain.ValidateID("doc_id", docID); err != nil {
		return domain.ChunkReport{}, err
	}
	report, err := natsutil.Request[ChunkJob, domain.ChunkReport](ctx, nc, ChunkSubject, ChunkJob{DocumentID: docID})
	if err != nil {
		return domain.ChunkReport{}, fmt.Errorf("ingest: chunk %s: %w", docID, err)
	}
	return report, nil
}

// Package audit maintains the global hash chain over every ledger write and
// replays it to detect tampering.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/metrics"
)

const (
	EntityMovement    = "movement"
	EntityReservation = "reservation"

	defaultVerifyBatch = 500
)

// CorruptionKind names what failed for a record during verification.
type CorruptionKind string

const (
	// CorruptionPayload means the recomputed hash differs from the stored one.
	CorruptionPayload CorruptionKind = "payload"
	// CorruptionLinkage means the stored prior hash or sequence does not
	// follow the previous record.
	CorruptionLinkage CorruptionKind = "linkage"
)

// AppendInput describes one audited transition.
type AppendInput struct {
	TenantID    string
	EntityType  string
	EntityID    uuid.UUID
	Actor       string
	SpecialType enums.AuditSpecialType
	Before      any
	After       any
}

// Range bounds a verification run by sequence. Zero values mean the start
// and the tail of the chain.
type Range struct {
	FromSequence int64
	ToSequence   int64
}

// Corruption is one failed check.
type Corruption struct {
	Sequence int64          `json:"sequence"`
	RecordID uuid.UUID      `json:"record_id"`
	Kind     CorruptionKind `json:"kind"`
	Expected string         `json:"expected"`
	Actual   string         `json:"actual"`
}

func (c Corruption) Error() string {
	return fmt.Sprintf("audit record %d (%s): %s mismatch: expected %s, got %s", c.Sequence, c.RecordID, c.Kind, c.Expected, c.Actual)
}

// VerifyReport is the outcome of a replay.
type VerifyReport struct {
	FromSequence int64        `json:"from_sequence"`
	ToSequence   int64        `json:"to_sequence"`
	Checked      int          `json:"checked"`
	Corruptions  []Corruption `json:"corruptions"`
}

// OK reports whether the replay found nothing wrong.
func (r *VerifyReport) OK() bool {
	return len(r.Corruptions) == 0
}

// Err folds every corruption into one error, or nil.
func (r *VerifyReport) Err() error {
	var err error
	for _, c := range r.Corruptions {
		err = multierr.Append(err, c)
	}
	return err
}

// Positions returns the sequences with at least one corruption.
func (r *VerifyReport) Positions() []int64 {
	seen := map[int64]struct{}{}
	out := []int64{}
	for _, c := range r.Corruptions {
		if _, ok := seen[c.Sequence]; ok {
			continue
		}
		seen[c.Sequence] = struct{}{}
		out = append(out, c.Sequence)
	}
	return out
}

// Service appends to and verifies the chain.
type Service struct {
	repo      *Repository
	metrics   *metrics.LedgerMetrics
	logg      *logger.Logger
	batchSize int
}

// NewService builds the audit chain service.
func NewService(repo *Repository, m *metrics.LedgerMetrics, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("audit repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, metrics: m, logg: logg, batchSize: defaultVerifyBatch}, nil
}

// Append links a new record to the tail of the chain inside tx. The head row
// stays locked until tx ends, which gives every append a single global order.
func (s *Service) Append(ctx context.Context, tx *gorm.DB, in AppendInput) (*models.AuditRecord, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if in.After == nil {
		return nil, errors.New("after snapshot required")
	}
	after, err := CanonicalJSON(in.After)
	if err != nil {
		return nil, err
	}
	var before []byte
	if in.Before != nil {
		if before, err = CanonicalJSON(in.Before); err != nil {
			return nil, err
		}
	}

	head, err := s.repo.LockHead(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("lock audit chain head: %w", err)
	}

	record := &models.AuditRecord{
		Sequence:       head.LastSequence + 1,
		TenantID:       in.TenantID,
		EntityType:     in.EntityType,
		EntityID:       in.EntityID,
		Actor:          in.Actor,
		SpecialType:    in.SpecialType,
		PriorHash:      head.TailHash,
		CurrentHash:    ChainHash(head.TailHash, after),
		BeforeSnapshot: before,
		AfterSnapshot:  after,
	}
	if err := s.repo.Insert(ctx, tx, record); err != nil {
		return nil, fmt.Errorf("append audit record: %w", err)
	}
	return record, nil
}

// Verify replays the records in rng. Each record's hash is recomputed from
// its stored snapshot chained onto the previous recomputed hash, so a single
// altered snapshot is reported at its own position and at every later one.
// Replay never stops at the first failure.
func (s *Service) Verify(ctx context.Context, rng Range) (*VerifyReport, error) {
	from := rng.FromSequence
	if from < 1 {
		from = 1
	}
	report := &VerifyReport{FromSequence: from, ToSequence: rng.ToSequence, Corruptions: []Corruption{}}

	var prevStored, prevComputed string
	expectedSeq := from
	if from > 1 {
		prev, err := s.repo.BySequence(ctx, from-1)
		if err != nil {
			return nil, fmt.Errorf("load audit record %d: %w", from-1, err)
		}
		if prev != nil {
			prevStored, prevComputed = prev.CurrentHash, prev.CurrentHash
		}
	}

	cursor := from
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := s.repo.Range(ctx, cursor, rng.ToSequence, s.batchSize)
		if err != nil {
			return nil, fmt.Errorf("load audit records: %w", err)
		}
		for _, rec := range rows {
			report.Corruptions = append(report.Corruptions, checkRecord(rec, expectedSeq, prevStored, prevComputed)...)
			canonical, cerr := Canonicalize(rec.AfterSnapshot)
			if cerr != nil {
				canonical = rec.AfterSnapshot
			}
			prevComputed = ChainHash(prevComputed, canonical)
			prevStored = rec.CurrentHash
			expectedSeq = rec.Sequence + 1
			report.Checked++
			report.ToSequence = rec.Sequence
		}
		if len(rows) < s.batchSize {
			break
		}
		cursor = rows[len(rows)-1].Sequence + 1
	}

	s.recordMetrics(ctx, report)
	return report, nil
}

func checkRecord(rec models.AuditRecord, expectedSeq int64, prevStored, prevComputed string) []Corruption {
	var out []Corruption
	if rec.Sequence != expectedSeq {
		out = append(out, Corruption{
			Sequence: rec.Sequence,
			RecordID: rec.ID,
			Kind:     CorruptionLinkage,
			Expected: "sequence " + strconv.FormatInt(expectedSeq, 10),
			Actual:   "sequence " + strconv.FormatInt(rec.Sequence, 10),
		})
	}
	if rec.PriorHash != prevStored {
		out = append(out, Corruption{
			Sequence: rec.Sequence,
			RecordID: rec.ID,
			Kind:     CorruptionLinkage,
			Expected: prevStored,
			Actual:   rec.PriorHash,
		})
	}
	canonical, err := Canonicalize(rec.AfterSnapshot)
	if err != nil {
		return append(out, Corruption{
			Sequence: rec.Sequence,
			RecordID: rec.ID,
			Kind:     CorruptionPayload,
			Expected: rec.CurrentHash,
			Actual:   "unparseable snapshot",
		})
	}
	if computed := ChainHash(prevComputed, canonical); computed != rec.CurrentHash {
		out = append(out, Corruption{
			Sequence: rec.Sequence,
			RecordID: rec.ID,
			Kind:     CorruptionPayload,
			Expected: computed,
			Actual:   rec.CurrentHash,
		})
	}
	return out
}

func (s *Service) recordMetrics(ctx context.Context, report *VerifyReport) {
	counts := map[CorruptionKind]int{}
	for _, c := range report.Corruptions {
		counts[c.Kind]++
	}
	for kind, n := range counts {
		s.metrics.AddAuditCorruptions(string(kind), n)
	}
	if report.OK() {
		s.logg.Info(ctx, "audit chain verified")
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"checked":     report.Checked,
		"corruptions": len(report.Corruptions),
		"first":       report.Corruptions[0].Sequence,
	})
	s.logg.Warn(ctx, "audit chain corruption detected")
}

// History returns the audit trail for one entity.
func (s *Service) History(ctx context.Context, tenantID, entityType string, entityID uuid.UUID) ([]models.AuditRecord, error) {
	return s.repo.ListForEntity(ctx, tenantID, entityType, entityID.String())
}

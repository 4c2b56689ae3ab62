// Package usage implements the usage-metrics import pipeline: CSV parsing,
// agent-name reconciliation against the catalog and learned aliases, and
// manual resolution of rows that matched nothing.
package usage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/digital-coe/agenthub/internal/model"
	"github.com/digital-coe/agenthub/internal/storage"
	"github.com/digital-coe/agenthub/internal/telemetry"
)

// Store is the persistence surface the reconciler needs. Both the Postgres
// and SQLite stores satisfy it.
type Store interface {
	ListAgentRefs(ctx context.Context) ([]model.AgentRef, error)
	ListAliases(ctx context.Context) ([]model.AgentAlias, error)
	GetAgent(ctx context.Context, id uuid.UUID) (model.Agent, error)
	InsertSnapshots(ctx context.Context, snapshots []model.UsageMetricsSnapshot) error
	InsertUnmatched(ctx context.Context, rows []model.UnmatchedUsageRow) error
	ResolveUnmatched(ctx context.Context, input storage.ResolveInput) error
	RecordImport(ctx context.Context, rec model.ImportRecord) error
}

// Reconciler matches imported usage rows to catalog agents.
type Reconciler struct {
	store      Store
	logger     *slog.Logger
	importedBy string

	rowsMatched    metric.Int64Counter
	rowsUnmatched  metric.Int64Counter
	importDuration metric.Float64Histogram
}

// New creates a Reconciler. importedBy labels import history entries and
// resolutions that arrive without an explicit actor.
func New(store Store, importedBy string, logger *slog.Logger) *Reconciler {
	meter := telemetry.Meter("agenthub/usage")
	matched, _ := meter.Int64Counter("agenthub.import.rows_matched",
		metric.WithDescription("Import rows auto-matched to an agent"),
	)
	unmatched, _ := meter.Int64Counter("agenthub.import.rows_unmatched",
		metric.WithDescription("Import rows requiring manual resolution"),
	)
	dur, _ := meter.Float64Histogram("agenthub.import.duration",
		metric.WithDescription("Time to reconcile one import (ms)"),
		metric.WithUnit("ms"),
	)
	return &Reconciler{
		store:          store,
		logger:         logger,
		importedBy:     importedBy,
		rowsMatched:    matched,
		rowsUnmatched:  unmatched,
		importDuration: dur,
	}
}

// ImportRows reconciles parsed rows against the catalog. Matching is
// case-insensitive on the trimmed name: canonical agent names win over
// aliases, and the first agent carrying a name wins over later duplicates.
// Matched rows become snapshots, the rest land in the unmatched queue.
func (r *Reconciler) ImportRows(ctx context.Context, rows []model.RawUsageRow) (model.ImportResult, error) {
	start := time.Now()

	// 1. Load the match targets in parallel.
	var refs []model.AgentRef
	var aliases []model.AgentAlias
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		refs, err = r.store.ListAgentRefs(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		aliases, err = r.store.ListAliases(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.ImportResult{}, fmt.Errorf("usage: load match targets: %w", err)
	}

	byID := make(map[uuid.UUID]model.AgentRef, len(refs))
	byName := make(map[string]uuid.UUID, len(refs))
	for _, ref := range refs {
		byID[ref.ID] = ref
		key := strings.ToLower(strings.TrimSpace(ref.Name))
		if _, ok := byName[key]; !ok {
			byName[key] = ref.ID
		}
	}
	byAlias := make(map[string]uuid.UUID, len(aliases))
	for _, a := range aliases {
		key := strings.ToLower(strings.TrimSpace(a.AliasName))
		if _, ok := byAlias[key]; !ok {
			byAlias[key] = a.AgentID
		}
	}

	// 2. Partition rows.
	var snapshots []model.UsageMetricsSnapshot
	var unmatched []model.UnmatchedUsageRow
	for _, row := range rows {
		name := strings.TrimSpace(row.AgentName)
		key := strings.ToLower(name)

		dataSource := row.DataSource
		if dataSource == "" {
			dataSource = model.DefaultDataSource
		}

		agentID, ok := byName[key]
		if !ok {
			// An alias only counts when its target still exists in the
			// catalog snapshot.
			if aliasID, aliased := byAlias[key]; aliased {
				_, known := byID[aliasID]
				agentID, ok = aliasID, known
			}
		}
		if ok {
			confidence := model.ConfidenceAuto
			if row.MatchConfidence != nil {
				confidence = *row.MatchConfidence
			}
			// Matched rows persist the catalog's canonical name, not the
			// file's free-text spelling.
			canonical := byID[agentID].Name
			snapshots = append(snapshots, model.UsageMetricsSnapshot{
				Account:         row.Account,
				AgentID:         &agentID,
				AgentName:       &canonical,
				Metric:          row.Metric,
				Value:           row.Value,
				TimeWindowStart: row.TimeWindowStart,
				TimeWindowEnd:   row.TimeWindowEnd,
				DataSource:      dataSource,
				RawAgentSlug:    row.RawAgentSlug,
				MatchConfidence: &confidence,
			})
			continue
		}
		unmatched = append(unmatched, model.UnmatchedUsageRow{
			Account:         row.Account,
			AgentName:       name,
			Metric:          row.Metric,
			Value:           row.Value,
			TimeWindowStart: row.TimeWindowStart,
			TimeWindowEnd:   row.TimeWindowEnd,
			DataSource:      dataSource,
			RawAgentSlug:    row.RawAgentSlug,
			MatchConfidence: row.MatchConfidence,
		})
	}

	// 3. Persist both partitions.
	if err := r.store.InsertSnapshots(ctx, snapshots); err != nil {
		return model.ImportResult{}, fmt.Errorf("usage: persist snapshots: %w", err)
	}
	if err := r.store.InsertUnmatched(ctx, unmatched); err != nil {
		return model.ImportResult{}, fmt.Errorf("usage: persist unmatched rows: %w", err)
	}

	result := model.ImportResult{Matched: len(snapshots), Unmatched: len(unmatched)}
	r.rowsMatched.Add(ctx, int64(result.Matched))
	r.rowsUnmatched.Add(ctx, int64(result.Unmatched))
	r.importDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	r.logger.Info("usage import reconciled",
		"matched", result.Matched,
		"unmatched", result.Unmatched,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// ImportCSV parses and reconciles an uploaded CSV. The import history entry
// is best-effort: a failure to record it is logged, not returned, so a
// completed import is never reported as failed.
func (r *Reconciler) ImportCSV(ctx context.Context, fileName string, src io.Reader) (model.ImportResult, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return model.ImportResult{}, fmt.Errorf("usage: read import file: %w", err)
	}

	rows := ParseCSV(string(data))
	result, err := r.ImportRows(ctx, rows)
	if err != nil {
		return model.ImportResult{}, err
	}

	importedBy := r.importedBy
	rec := model.ImportRecord{
		FileName:        fileName,
		RecordsImported: result.Matched,
		RecordsFailed:   result.Unmatched,
		ImportedBy:      &importedBy,
	}
	if err := r.store.RecordImport(ctx, rec); err != nil {
		r.logger.Warn("usage: record import history failed", "file", fileName, "error", err)
	}
	return result, nil
}

// ResolveInput carries one manual resolution of an unmatched row.
type ResolveInput struct {
	RowID       uuid.UUID
	AgentID     uuid.UUID
	AgentName   string // canonical name for the snapshot; looked up when empty
	ResolvedBy  string // defaults to the reconciler's importedBy
	CreateAlias bool
}

// ResolveUnmatchedRow applies a manual resolution. The snapshot, the row
// update, and the optional alias commit atomically in the store.
func (r *Reconciler) ResolveUnmatchedRow(ctx context.Context, input ResolveInput) error {
	if input.AgentID == uuid.Nil {
		return fmt.Errorf("usage: resolve: agent_id is required")
	}
	if input.AgentName == "" {
		agent, err := r.store.GetAgent(ctx, input.AgentID)
		if err != nil {
			return fmt.Errorf("usage: resolve: %w", err)
		}
		input.AgentName = agent.Name
	}
	if input.ResolvedBy == "" {
		input.ResolvedBy = r.importedBy
	}

	err := r.store.ResolveUnmatched(ctx, storage.ResolveInput{
		RowID:       input.RowID,
		AgentID:     input.AgentID,
		AgentName:   input.AgentName,
		ResolvedBy:  input.ResolvedBy,
		CreateAlias: input.CreateAlias,
	})
	if err != nil {
		return err
	}
	r.logger.Info("unmatched usage row resolved",
		"row_id", input.RowID,
		"agent_id", input.AgentID,
		"alias_created", input.CreateAlias,
	)
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sprints (
			sprint_id TEXT PRIMARY KEY,
			goal TEXT NOT NULL,
			status TEXT NOT NULL,
			phase TEXT,
			attempt INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			error TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS candidates (
			candidate_id TEXT PRIMARY KEY,
			sprint_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			agent_name TEXT NOT NULL,
			provider TEXT,
			model TEXT,
			content TEXT,
			success INTEGER NOT NULL,
			error TEXT,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			token_usage TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (sprint_id) REFERENCES sprints(sprint_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_candidates_sprint ON candidates(sprint_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			sprint_id TEXT PRIMARY KEY,
			candidate_id TEXT NOT NULL,
			score REAL NOT NULL DEFAULT 0,
			rationale TEXT,
			judge_model TEXT,
			fallback INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (sprint_id) REFERENCES sprints(sprint_id)
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			checkpoint_id TEXT PRIMARY KEY,
			parent_id TEXT,
			sprint_id TEXT NOT NULL,
			phase TEXT,
			status TEXT NOT NULL,
			agent_data TEXT,
			context TEXT,
			metadata TEXT,
			error TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_sprint ON checkpoints(sprint_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS timeline_events (
			event_id TEXT PRIMARY KEY,
			sprint_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			type TEXT NOT NULL,
			phase TEXT,
			checkpoint_id TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			metadata TEXT,
			ts DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_timeline_sprint ON timeline_events(sprint_id, sequence)`,
		`CREATE TABLE IF NOT EXISTS phase_records (
			sprint_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			candidate_ids TEXT,
			decision_id TEXT,
			PRIMARY KEY (sprint_id, phase, attempt)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSprint inserts a sprint row.
func (s *SQLiteStore) CreateSprint(ctx context.Context, sprint *domain.Sprint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sprints (sprint_id, goal, status, phase, attempt, started_at, ended_at, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sprint.SprintID, sprint.Goal, sprint.Status, nullString(string(sprint.Phase)),
		sprint.Attempt, sprint.StartedAt, sprint.EndedAt, nullString(sprint.Error))
	if err != nil {
		return fmt.Errorf("failed to create sprint: %w", err)
	}
	return nil
}

// GetSprint returns a sprint by id, or nil when absent.
func (s *SQLiteStore) GetSprint(ctx context.Context, sprintID string) (*domain.Sprint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT sprint_id, goal, status, phase, attempt, started_at, ended_at, error
		 FROM sprints WHERE sprint_id = ?`, sprintID)

	var sprint domain.Sprint
	var phase, errMsg sql.NullString
	var endedAt sql.NullTime
	err := row.Scan(&sprint.SprintID, &sprint.Goal, &sprint.Status, &phase,
		&sprint.Attempt, &sprint.StartedAt, &endedAt, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sprint: %w", err)
	}
	sprint.Phase = domain.Phase(phase.String)
	sprint.Error = errMsg.String
	if endedAt.Valid {
		sprint.EndedAt = &endedAt.Time
	}
	return &sprint, nil
}

// UpdateSprintPhase updates the live status/phase/attempt of a sprint.
func (s *SQLiteStore) UpdateSprintPhase(ctx context.Context, sprintID string, status domain.SprintStatus, phase domain.Phase, attempt int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sprints SET status = ?, phase = ?, attempt = ? WHERE sprint_id = ?`,
		status, string(phase), attempt, sprintID)
	if err != nil {
		return fmt.Errorf("failed to update sprint phase: %w", err)
	}
	return nil
}

// UpdateSprintCompleted marks a sprint terminal.
func (s *SQLiteStore) UpdateSprintCompleted(ctx context.Context, sprintID string, status domain.SprintStatus, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sprints SET status = ?, ended_at = ?, error = ? WHERE sprint_id = ?`,
		status, time.Now(), nullString(errMsg), sprintID)
	if err != nil {
		return fmt.Errorf("failed to complete sprint: %w", err)
	}
	return nil
}

// CreateCandidate inserts a candidate row.
func (s *SQLiteStore) CreateCandidate(ctx context.Context, candidate *domain.Candidate) error {
	usage, err := json.Marshal(candidate.TokenUsage)
	if err != nil {
		return fmt.Errorf("failed to marshal token usage: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO candidates (candidate_id, sprint_id, phase, attempt, agent_name, provider, model,
			content, success, error, latency_ms, token_usage, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		candidate.CandidateID, candidate.SprintID, candidate.Phase, candidate.Attempt,
		candidate.AgentName, candidate.Provider, candidate.Model, candidate.Content,
		candidate.Success, nullString(candidate.Error), candidate.LatencyMs, string(usage),
		candidate.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create candidate: %w", err)
	}
	return nil
}

// ListCandidates returns candidates for a sprint ordered by creation.
func (s *SQLiteStore) ListCandidates(ctx context.Context, sprintID string) ([]domain.Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT candidate_id, sprint_id, phase, attempt, agent_name, provider, model,
			content, success, error, latency_ms, token_usage, created_at
		 FROM candidates WHERE sprint_id = ? ORDER BY created_at, candidate_id`, sprintID)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		var c domain.Candidate
		var errMsg sql.NullString
		var usage string
		if err := rows.Scan(&c.CandidateID, &c.SprintID, &c.Phase, &c.Attempt, &c.AgentName,
			&c.Provider, &c.Model, &c.Content, &c.Success, &errMsg, &c.LatencyMs, &usage,
			&c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		c.Error = errMsg.String
		if usage != "" {
			if err := json.Unmarshal([]byte(usage), &c.TokenUsage); err != nil {
				return nil, fmt.Errorf("failed to unmarshal token usage: %w", err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertDecision creates or replaces the single decision of a sprint.
func (s *SQLiteStore) UpsertDecision(ctx context.Context, decision *domain.Decision) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (sprint_id, candidate_id, score, rationale, judge_model, fallback, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(sprint_id) DO UPDATE SET
			candidate_id = excluded.candidate_id,
			score = excluded.score,
			rationale = excluded.rationale,
			judge_model = excluded.judge_model,
			fallback = excluded.fallback,
			created_at = excluded.created_at`,
		decision.SprintID, decision.CandidateID, decision.Score, decision.Rationale,
		decision.JudgeModel, decision.Fallback, decision.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert decision: %w", err)
	}
	return nil
}

// GetDecision returns the decision for a sprint, or nil when absent.
func (s *SQLiteStore) GetDecision(ctx context.Context, sprintID string) (*domain.Decision, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT sprint_id, candidate_id, score, rationale, judge_model, fallback, created_at
		 FROM decisions WHERE sprint_id = ?`, sprintID)

	var d domain.Decision
	err := row.Scan(&d.SprintID, &d.CandidateID, &d.Score, &d.Rationale, &d.JudgeModel,
		&d.Fallback, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}
	return &d, nil
}

// SaveCheckpoint inserts a checkpoint row.
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, checkpoint *domain.Checkpoint) error {
	metadata, err := json.Marshal(checkpoint.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (checkpoint_id, parent_id, sprint_id, phase, status,
			agent_data, context, metadata, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		checkpoint.CheckpointID, nullString(checkpoint.ParentID), checkpoint.SprintID,
		string(checkpoint.Phase), checkpoint.Status, string(checkpoint.AgentData),
		string(checkpoint.Context), string(metadata), nullString(checkpoint.Error),
		checkpoint.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint returns a checkpoint by id, or nil when absent.
func (s *SQLiteStore) GetCheckpoint(ctx context.Context, checkpointID string) (*domain.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT checkpoint_id, parent_id, sprint_id, phase, status, agent_data, context, metadata, error, created_at
		 FROM checkpoints WHERE checkpoint_id = ?`, checkpointID)
	ckpt, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return ckpt, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCheckpoint(row rowScanner) (*domain.Checkpoint, error) {
	var c domain.Checkpoint
	var parentID, phase, agentData, contextData, metadata, errMsg sql.NullString
	err := row.Scan(&c.CheckpointID, &parentID, &c.SprintID, &phase, &c.Status,
		&agentData, &contextData, &metadata, &errMsg, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.ParentID = parentID.String
	c.Phase = domain.Phase(phase.String)
	c.Error = errMsg.String
	if agentData.String != "" {
		c.AgentData = json.RawMessage(agentData.String)
	}
	if contextData.String != "" {
		c.Context = json.RawMessage(contextData.String)
	}
	if metadata.String != "" && metadata.String != "null" {
		if err := json.Unmarshal([]byte(metadata.String), &c.Metadata); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// UpdateCheckpointStatus mutates only status and the optional error.
func (s *SQLiteStore) UpdateCheckpointStatus(ctx context.Context, checkpointID string, status domain.CheckpointStatus, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE checkpoints SET status = ?, error = ? WHERE checkpoint_id = ?`,
		status, nullString(errMsg), checkpointID)
	if err != nil {
		return fmt.Errorf("failed to update checkpoint status: %w", err)
	}
	return nil
}

// DeleteCheckpoint removes a checkpoint row.
func (s *SQLiteStore) DeleteCheckpoint(ctx context.Context, checkpointID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE checkpoint_id = ?`, checkpointID)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// ListCheckpoints returns the checkpoints of a sprint ordered by created_at.
func (s *SQLiteStore) ListCheckpoints(ctx context.Context, sprintID string) ([]domain.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT checkpoint_id, parent_id, sprint_id, phase, status, agent_data, context, metadata, error, created_at
		 FROM checkpoints WHERE sprint_id = ? ORDER BY created_at, checkpoint_id`, sprintID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []domain.Checkpoint
	for rows.Next() {
		ckpt, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		out = append(out, *ckpt)
	}
	return out, rows.Err()
}

// CreateTimelineEvent appends a timeline event.
func (s *SQLiteStore) CreateTimelineEvent(ctx context.Context, event *domain.TimelineEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO timeline_events (event_id, sprint_id, sequence, type, phase, checkpoint_id, duration_ms, metadata, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventID, event.SprintID, event.Sequence, event.Type, string(event.Phase),
		nullString(event.CheckpointID), event.DurationMs, string(event.Metadata), event.Ts)
	if err != nil {
		return fmt.Errorf("failed to create timeline event: %w", err)
	}
	return nil
}

// ListTimelineEvents returns events for a sprint in sequence order.
func (s *SQLiteStore) ListTimelineEvents(ctx context.Context, sprintID string, afterSeq int64, limit int) ([]domain.TimelineEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, sprint_id, sequence, type, phase, checkpoint_id, duration_ms, metadata, ts
		 FROM timeline_events WHERE sprint_id = ? AND sequence >= ?
		 ORDER BY sequence LIMIT ?`, sprintID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list timeline events: %w", err)
	}
	defer rows.Close()

	var out []domain.TimelineEvent
	for rows.Next() {
		var e domain.TimelineEvent
		var phase, checkpointID, metadata sql.NullString
		if err := rows.Scan(&e.EventID, &e.SprintID, &e.Sequence, &e.Type, &phase,
			&checkpointID, &e.DurationMs, &metadata, &e.Ts); err != nil {
			return nil, fmt.Errorf("failed to scan timeline event: %w", err)
		}
		e.Phase = domain.Phase(phase.String)
		e.CheckpointID = checkpointID.String
		if metadata.String != "" {
			e.Metadata = json.RawMessage(metadata.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreatePhaseRecord inserts one phase attempt record.
func (s *SQLiteStore) CreatePhaseRecord(ctx context.Context, record *domain.PhaseRecord) error {
	ids, err := json.Marshal(record.CandidateIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal candidate ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO phase_records (sprint_id, phase, attempt, status, started_at, ended_at, duration_ms, candidate_ids, decision_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.SprintID, record.Phase, record.Attempt, record.Status, record.StartedAt,
		record.EndedAt, record.DurationMs, string(ids), nullString(record.DecisionID))
	if err != nil {
		return fmt.Errorf("failed to create phase record: %w", err)
	}
	return nil
}

// ListPhaseRecords returns phase attempts for a sprint in start order.
func (s *SQLiteStore) ListPhaseRecords(ctx context.Context, sprintID string) ([]domain.PhaseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sprint_id, phase, attempt, status, started_at, ended_at, duration_ms, candidate_ids, decision_id
		 FROM phase_records WHERE sprint_id = ? ORDER BY started_at`, sprintID)
	if err != nil {
		return nil, fmt.Errorf("failed to list phase records: %w", err)
	}
	defer rows.Close()

	var out []domain.PhaseRecord
	for rows.Next() {
		var r domain.PhaseRecord
		var endedAt sql.NullTime
		var ids, decisionID sql.NullString
		if err := rows.Scan(&r.SprintID, &r.Phase, &r.Attempt, &r.Status, &r.StartedAt,
			&endedAt, &r.DurationMs, &ids, &decisionID); err != nil {
			return nil, fmt.Errorf("failed to scan phase record: %w", err)
		}
		if endedAt.Valid {
			r.EndedAt = &endedAt.Time
		}
		r.DecisionID = decisionID.String
		if ids.String != "" && ids.String != "null" {
			if err := json.Unmarshal([]byte(ids.String), &r.CandidateIDs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal candidate ids: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

var _ Store = (*SQLiteStore)(nil)

package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"triage/internal/config"
)

// Store manages prediction and chat persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	hub  *hub
}

// Open initializes or connects to the history database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "history.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, hub: newHub()}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection and drops all subscribers.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.hub.close()
	return s.db.Close()
}

// SavePrediction persists a prediction record, assigning its ID and timestamp.
func (s *Store) SavePrediction(ctx context.Context, rec *Prediction) error {
	if rec == nil {
		return errors.New("prediction is nil")
	}
	if strings.TrimSpace(rec.UserID) == "" {
		return errors.New("prediction requires a user id")
	}
	symptomsJSON, err := json.Marshal(rec.Symptoms)
	if err != nil {
		return fmt.Errorf("marshal symptoms: %w", err)
	}

	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO predictions (id, user_id, symptoms_json, age, gender, result_json, model, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.UserID,
		string(symptomsJSON),
		rec.Age,
		nullableString(rec.Gender),
		rec.ResultJSON,
		nullableString(rec.Model),
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

// ListPredictions returns a user's predictions, newest first. A limit of 0
// returns everything.
func (s *Store) ListPredictions(ctx context.Context, userID string, limit int) ([]*Prediction, error) {
	query := `SELECT ` + predictionColumns + ` FROM predictions WHERE user_id = ? ORDER BY created_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	var records []*Prediction
	for rows.Next() {
		rec, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetPrediction fetches one prediction by identifier, scoped to the user.
func (s *Store) GetPrediction(ctx context.Context, userID, id string) (*Prediction, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	rec, err := scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get prediction: %w", err)
	}
	return rec, nil
}

// RemovePrediction deletes one prediction, scoped to the user.
func (s *Store) RemovePrediction(ctx context.Context, userID, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM predictions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete prediction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearPredictions removes all of a user's predictions.
func (s *Store) ClearPredictions(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM predictions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear predictions: %w", err)
	}
	return res.RowsAffected()
}

// AppendMessage persists a chat message and notifies subscribers.
func (s *Store) AppendMessage(ctx context.Context, msg *Message) error {
	if msg == nil {
		return errors.New("message is nil")
	}
	if strings.TrimSpace(msg.UserID) == "" {
		return errors.New("message requires a user id")
	}
	if !ValidRole(msg.Role) {
		return fmt.Errorf("unknown chat role %q", msg.Role)
	}
	if strings.TrimSpace(msg.Content) == "" {
		return errors.New("message content is empty")
	}

	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO chat_messages (id, user_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID,
		msg.UserID,
		string(msg.Role),
		msg.Content,
		msg.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	s.hub.publish(*msg)
	return nil
}

// Transcript returns a user's chat messages in chronological order. A limit
// of 0 returns everything; otherwise the most recent limit messages are
// returned, still oldest first.
func (s *Store) Transcript(ctx context.Context, userID string, limit int) ([]*Message, error) {
	query := `SELECT id, user_id, role, content, created_at FROM chat_messages WHERE user_id = ? ORDER BY created_at`
	args := []any{userID}
	if limit > 0 {
		query = `SELECT id, user_id, role, content, created_at FROM (
            SELECT id, user_id, role, content, created_at FROM chat_messages
            WHERE user_id = ? ORDER BY created_at DESC LIMIT ?
        ) ORDER BY created_at`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ClearTranscript removes all of a user's chat messages.
func (s *Store) ClearTranscript(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear transcript: %w", err)
	}
	return res.RowsAffected()
}

// Subscribe registers for messages appended for userID. The returned cancel
// function must be called to release the subscription.
func (s *Store) Subscribe(userID string) (<-chan Message, func()) {
	return s.hub.subscribe(userID)
}

// CollectStats returns record counts for diagnostics.
func (s *Store) CollectStats(ctx context.Context) (Stats, error) {
	var stats Stats
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM predictions`)
	if err := row.Scan(&stats.Predictions); err != nil {
		return Stats{}, fmt.Errorf("count predictions: %w", err)
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM chat_messages`)
	if err := row.Scan(&stats.Messages); err != nil {
		return Stats{}, fmt.Errorf("count messages: %w", err)
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM (
        SELECT user_id FROM predictions UNION SELECT user_id FROM chat_messages
    )`)
	if err := row.Scan(&stats.Users); err != nil {
		return Stats{}, fmt.Errorf("count users: %w", err)
	}
	return stats, nil
}

// CheckHealth pings the database and verifies integrity.
func (s *Store) CheckHealth(ctx context.Context) error {
	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		return fmt.Errorf("ping history database: %w", err)
	}
	var result string
	row := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	if err := row.Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if !strings.EqualFold(result, "ok") {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

const predictionColumns = "id, user_id, symptoms_json, age, gender, result_json, model, created_at"

func scanPrediction(scanner interface{ Scan(dest ...any) error }) (*Prediction, error) {
	var (
		id           string
		userID       string
		symptomsJSON string
		age          int
		gender       sql.NullString
		resultJSON   string
		model        sql.NullString
		createdRaw   string
	)
	if err := scanner.Scan(&id, &userID, &symptomsJSON, &age, &gender, &resultJSON, &model, &createdRaw); err != nil {
		return nil, err
	}

	rec := &Prediction{
		ID:         id,
		UserID:     userID,
		Age:        age,
		Gender:     gender.String,
		ResultJSON: resultJSON,
		Model:      model.String,
	}
	if err := json.Unmarshal([]byte(symptomsJSON), &rec.Symptoms); err != nil {
		return nil, fmt.Errorf("decode symptoms for %s: %w", id, err)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		rec.CreatedAt = created
	}
	return rec, nil
}

func scanMessage(scanner interface{ Scan(dest ...any) error }) (*Message, error) {
	var (
		id         string
		userID     string
		role       string
		content    string
		createdRaw string
	)
	if err := scanner.Scan(&id, &userID, &role, &content, &createdRaw); err != nil {
		return nil, err
	}
	msg := &Message{
		ID:      id,
		UserID:  userID,
		Role:    Role(role),
		Content: content,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		msg.CreatedAt = created
	}
	return msg, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

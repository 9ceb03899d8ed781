package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/lvdashuaibi/livevote/config"
	"github.com/lvdashuaibi/livevote/internal/model"
)

// mysqlErrDuplicateEntry is the server error for a unique key
// violation. The unique index on votes.user_id turns the
// check-then-insert into a single atomic operation.
const mysqlErrDuplicateEntry = 1062

// MySQLRepository is the durable store behind the vote ledger and the
// user registry. The ledger is append-only: votes are inserted exactly
// once and never updated or deleted.
type MySQLRepository struct {
	db *sql.DB
}

func NewMySQLRepository(cfg config.MySQLConfig) (*MySQLRepository, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	repo := &MySQLRepository{db: db}
	if err := repo.ensureSchema(); err != nil {
		return nil, err
	}

	return repo, nil
}

// ensureSchema creates the tables if they do not exist. Safe to call
// on every start.
func (r *MySQLRepository) ensureSchema() error {
	if _, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS users (
		id CHAR(36) NOT NULL PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		has_voted TINYINT(1) NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		UNIQUE KEY uniq_users_name (name)
	)`); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}

	if _, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS votes (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id CHAR(36) NOT NULL,
		name VARCHAR(100) NOT NULL,
		option_label VARCHAR(100) NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE KEY uniq_votes_user (user_id),
		KEY idx_votes_option (option_label)
	)`); err != nil {
		return fmt.Errorf("create votes table: %w", err)
	}

	return nil
}

// FindOrCreateUser looks up a user by display name, registering the
// name on first login. Two concurrent first logins with the same name
// are serialized by the unique index; the loser re-reads the winner's
// row.
func (r *MySQLRepository) FindOrCreateUser(ctx context.Context, name string) (*model.User, error) {
	user, err := r.findUserByName(ctx, name)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("look up user %q: %w", name, err)
	}

	created := &model.User{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO users (id, name, has_voted, created_at) VALUES (?, ?, 0, ?)",
		created.ID, created.Name, created.CreatedAt,
	)
	if err != nil {
		if isDuplicateEntry(err) {
			// Lost a registration race; the name now exists.
			return r.findUserByName(ctx, name)
		}
		return nil, fmt.Errorf("create user %q: %w", name, err)
	}

	return created, nil
}

func (r *MySQLRepository) findUserByName(ctx context.Context, name string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, name, has_voted, created_at FROM users WHERE name = ?", name)

	var user model.User
	if err := row.Scan(&user.ID, &user.Name, &user.HasVoted, &user.CreatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}

// InsertVote appends one vote record for the identity. The unique key
// on user_id makes the duplicate check atomic: a second insert for the
// same user fails inside MySQL with no side effects and is reported as
// model.ErrAlreadyVoted. The has_voted projection is updated in the
// same transaction so it can never drift from the ledger.
func (r *MySQLRepository) InsertVote(ctx context.Context, identity model.Identity, option string) (*model.Vote, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin vote transaction: %w", err)
	}

	vote := &model.Vote{
		UserID:    identity.UserID,
		Name:      identity.Name,
		Option:    option,
		CreatedAt: time.Now().UTC(),
	}

	result, err := tx.ExecContext(ctx,
		"INSERT INTO votes (user_id, name, option_label, created_at) VALUES (?, ?, ?, ?)",
		vote.UserID, vote.Name, vote.Option, vote.CreatedAt,
	)
	if err != nil {
		tx.Rollback()
		if isDuplicateEntry(err) {
			return nil, model.ErrAlreadyVoted
		}
		return nil, fmt.Errorf("insert vote: %w", err)
	}

	if vote.ID, err = result.LastInsertId(); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("read vote id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET has_voted = 1 WHERE id = ?", vote.UserID); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("mark user voted: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit vote: %w", err)
	}

	return vote, nil
}

// ListVotes returns the full ledger in insertion order. Admin/debug
// read path, unpaginated.
func (r *MySQLRepository) ListVotes(ctx context.Context) ([]*model.Vote, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, user_id, name, option_label, created_at FROM votes ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	return scanVotes(rows)
}

// ListVotesForUser returns the user's most recent votes, newest first,
// bounded to limit records.
func (r *MySQLRepository) ListVotesForUser(ctx context.Context, userID string, limit int) ([]*model.Vote, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, user_id, name, option_label, created_at FROM votes WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list votes for user %s: %w", userID, err)
	}
	defer rows.Close()

	return scanVotes(rows)
}

// CountByOption aggregates the ledger grouped by option. Options with
// no votes are absent here; the tally engine zero-fills them.
func (r *MySQLRepository) CountByOption(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT option_label, COUNT(*) FROM votes GROUP BY option_label")
	if err != nil {
		return nil, fmt.Errorf("count votes by option: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var option string
		var count int
		if err := rows.Scan(&option, &count); err != nil {
			return nil, fmt.Errorf("scan vote count: %w", err)
		}
		counts[option] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vote counts: %w", err)
	}

	return counts, nil
}

func scanVotes(rows *sql.Rows) ([]*model.Vote, error) {
	var votes []*model.Vote
	for rows.Next() {
		var vote model.Vote
		if err := rows.Scan(&vote.ID, &vote.UserID, &vote.Name, &vote.Option, &vote.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		votes = append(votes, &vote)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}
	return votes, nil
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry
}

// Close releases the connection pool.
func (r *MySQLRepository) Close() error {
	return r.db.Close()
}

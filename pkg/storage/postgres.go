package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"seventweets/pkg/config"
	"seventweets/pkg/types"

	"github.com/benbjohnson/clock"
	_ "github.com/lib/pq"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS tweet (
	id SERIAL PRIMARY KEY,
	node_name TEXT NOT NULL,
	content TEXT NOT NULL,
	pub_datetime TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const selectTweet = "SELECT id, node_name, content, pub_datetime FROM tweet"

// PostgresStore keeps tweets in the tweet table of a PostgreSQL database
type PostgresStore struct {
	db       *sql.DB
	nodeName string
	clock    clock.Clock
}

// OpenPostgresStore connects through lib/pq and makes sure the tweet table exists
func OpenPostgresStore(cfg config.PostgresConfig, nodeName string, clk clock.Clock) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	s := NewPostgresStore(db, nodeName, clk)
	if err := s.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func NewPostgresStore(db *sql.DB, nodeName string, clk clock.Clock) *PostgresStore {
	if clk == nil {
		clk = clock.New()
	}
	return &PostgresStore{db: db, nodeName: nodeName, clock: clk}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create tweet table: %w", err)
	}
	return nil
}

func (s *PostgresStore) All(ctx context.Context) ([]types.Tweet, error) {
	return s.query(ctx, selectTweet+" ORDER BY id")
}

func (s *PostgresStore) Get(ctx context.Context, id types.TweetID) (*types.Tweet, error) {
	row := s.db.QueryRowContext(ctx, selectTweet+" WHERE id = $1", int64(id))

	t, err := scanTweet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tweet %d: %w", id, err)
	}
	return t, nil
}

func (s *PostgresStore) Save(ctx context.Context, content string) (*types.Tweet, error) {
	row := s.db.QueryRowContext(ctx,
		"INSERT INTO tweet (node_name, content, pub_datetime) VALUES ($1, $2, $3) RETURNING id, node_name, content, pub_datetime",
		s.nodeName, content, s.clock.Now().UTC())

	t, err := scanTweet(row)
	if err != nil {
		return nil, fmt.Errorf("failed to save tweet: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id types.TweetID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tweet WHERE id = $1", int64(id))
	if err != nil {
		return fmt.Errorf("failed to delete tweet %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete tweet %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, criteria types.SearchCriteria) ([]types.Tweet, error) {
	query, args := buildSearchQuery(criteria)
	return s.query(ctx, query, args...)
}

// buildSearchQuery turns criteria into a parameterized query. Content is
// matched with ILIKE after escaping the LIKE metacharacters.
func buildSearchQuery(criteria types.SearchCriteria) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)

	if criteria.Content != "" {
		args = append(args, "%"+escapeLike(criteria.Content)+"%")
		conds = append(conds, fmt.Sprintf("content ILIKE $%d", len(args)))
	}
	if !criteria.From.IsZero() {
		args = append(args, criteria.From.UTC())
		conds = append(conds, fmt.Sprintf("pub_datetime >= $%d", len(args)))
	}
	if !criteria.To.IsZero() {
		args = append(args, criteria.To.UTC())
		conds = append(conds, fmt.Sprintf("pub_datetime <= $%d", len(args)))
	}

	query := selectTweet
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	return query + " ORDER BY id", args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...interface{}) ([]types.Tweet, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tweets: %w", err)
	}
	defer rows.Close()

	tweets := []types.Tweet{}
	for rows.Next() {
		t, err := scanTweet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read tweet: %w", err)
		}
		tweets = append(tweets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tweets: %w", err)
	}
	return tweets, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTweet(row scanner) (*types.Tweet, error) {
	var (
		t  types.Tweet
		id int64
	)
	if err := row.Scan(&id, &t.Name, &t.Tweet, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.ID = types.TweetID(id)
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

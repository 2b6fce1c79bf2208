package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/pulsechat/internal/repository"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so every repo can
// run either on the pool or inside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repos struct {
	users         *UserRepo
	conversations *ConversationRepo
	participants  *ParticipantRepo
	messages      *MessageRepo
	media         *MediaRepo
}

func newRepos(db querier) *repos {
	return &repos{
		users:         &UserRepo{db: db},
		conversations: &ConversationRepo{db: db},
		participants:  &ParticipantRepo{db: db},
		messages:      &MessageRepo{db: db},
		media:         &MediaRepo{db: db},
	}
}

func (r *repos) Users() repository.UserRepository                 { return r.users }
func (r *repos) Conversations() repository.ConversationRepository { return r.conversations }
func (r *repos) Participants() repository.ParticipantRepository   { return r.participants }
func (r *repos) Messages() repository.MessageRepository           { return r.messages }
func (r *repos) Media() repository.MediaRepository                { return r.media }

// Store implements repository.Store on a pgx pool.
type Store struct {
	*repos
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{repos: newRepos(pool), pool: pool}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Repos) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(newRepos(tx))
	})
}

package guardian

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

const pgUniqueViolation = "23505"

// BunAccountStore is the relational AccountStore. Soft deletes stamp
// deleted_at and bun filters those rows out of every query.
type BunAccountStore struct {
	db     bun.IDB
	now    func() time.Time
	logger Logger
}

var _ AccountStore = (*BunAccountStore)(nil)

// BunAccountStoreOption customizes a BunAccountStore
type BunAccountStoreOption func(*BunAccountStore)

// WithBunStoreClock injects the clock used for timestamps
func WithBunStoreClock(clock func() time.Time) BunAccountStoreOption {
	return func(s *BunAccountStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithBunStoreLogger overrides the store logger
func WithBunStoreLogger(logger Logger) BunAccountStoreOption {
	return func(s *BunAccountStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewBunAccountStore returns a store over db, which may be a *bun.DB or a
// bun.Tx.
func NewBunAccountStore(db bun.IDB, opts ...BunAccountStoreOption) *BunAccountStore {
	s := &BunAccountStore{
		db:     db,
		now:    time.Now,
		logger: newDefLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *BunAccountStore) FindByIdentity(ctx context.Context, identity string) (*Account, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, NewNotFoundError(identity)
	}

	account := new(Account)
	err := s.db.NewSelect().
		Model(account).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("acct.email = ?", identity).
				WhereOr("acct.username = ?", identity).
				WhereOr("acct.mobile = ?", identity)
		}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, s.mapReadError(err, identity)
	}
	return account, nil
}

func (s *BunAccountStore) FindByID(ctx context.Context, id string) (*Account, error) {
	account := new(Account)
	err := s.db.NewSelect().
		Model(account).
		Where("acct.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, s.mapReadError(err, id)
	}
	return account, nil
}

func (s *BunAccountStore) Create(ctx context.Context, cmd CreateAccountCommand) (*Account, error) {
	account := NewAccountFromCommand(cmd)
	if !account.HasIdentity() {
		return nil, NewValidationError(MsgMissingIdentity, nil)
	}
	now := s.now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	if _, err := s.db.NewInsert().Model(account).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, NewConflictError(MsgIdentityTaken)
		}
		return nil, NewInternalError(err, "failed to create account")
	}
	return account, nil
}

func (s *BunAccountStore) Lock(ctx context.Context, id string) (bool, error) {
	now := s.now().UTC()
	res, err := s.db.NewUpdate().
		Model((*Account)(nil)).
		Set("locked = ?", true).
		Set("locked_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("locked = ?", false).
		Where("deleted_at IS NULL").
		Exec(ctx)
	return s.compareAndSetResult(ctx, id, res, err, MsgAlreadyLocked)
}

func (s *BunAccountStore) Unlock(ctx context.Context, id string) (bool, error) {
	now := s.now().UTC()
	res, err := s.db.NewUpdate().
		Model((*Account)(nil)).
		Set("locked = ?", false).
		Set("locked_at = NULL").
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("locked = ?", true).
		Where("deleted_at IS NULL").
		Exec(ctx)
	return s.compareAndSetResult(ctx, id, res, err, MsgNotLocked)
}

func (s *BunAccountStore) Delete(ctx context.Context, id string, hard bool) (bool, error) {
	q := s.db.NewDelete().
		Model((*Account)(nil)).
		Where("id = ?", id)
	if hard {
		// purges soft deleted rows too
		q = q.ForceDelete().WhereAllWithDeleted()
	} else {
		q = q.Where("deleted_at IS NULL")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, NewInternalError(err, "failed to delete account")
	}
	return s.requireAffected(res, id)
}

func (s *BunAccountStore) RequireNewPassword(ctx context.Context, id string) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*Account)(nil)).
		Set("require_new_password = ?", true).
		Set("updated_at = ?", s.now().UTC()).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, NewInternalError(err, "failed to require new password")
	}
	return s.requireAffected(res, id)
}

func (s *BunAccountStore) SetPassword(ctx context.Context, id, passwordHash string) (bool, error) {
	now := s.now().UTC()
	res, err := s.db.NewUpdate().
		Model((*Account)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("require_new_password = ?", false).
		Set("password_changed_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, NewInternalError(err, "failed to set password")
	}
	return s.requireAffected(res, id)
}

func (s *BunAccountStore) ConfirmEmail(ctx context.Context, id string) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*Account)(nil)).
		Set("unconfirmed_email = NULL").
		Set("updated_at = ?", s.now().UTC()).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, NewInternalError(err, "failed to confirm email")
	}
	return s.requireAffected(res, id)
}

func (s *BunAccountStore) TrackLogin(ctx context.Context, id string) error {
	_, err := s.db.NewUpdate().
		Model((*Account)(nil)).
		Set("last_login_at = ?", s.now().UTC()).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return NewInternalError(err, "failed to track login")
	}
	return nil
}

func (s *BunAccountStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.NewSelect().ColumnExpr("1").Scan(ctx, &one); err != nil {
		return NewInternalError(err, "database unreachable")
	}
	return nil
}

// compareAndSetResult turns a zero row update into NotFound or, when the
// account exists, a Conflict carrying conflictMsg.
func (s *BunAccountStore) compareAndSetResult(ctx context.Context, id string, res sql.Result, err error, conflictMsg string) (bool, error) {
	if err != nil {
		return false, NewInternalError(err, "failed to update account")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, NewInternalError(err, "failed to update account")
	}
	if affected > 0 {
		return true, nil
	}
	if _, err := s.FindByID(ctx, id); err != nil {
		return false, err
	}
	return false, NewConflictError(conflictMsg)
}

func (s *BunAccountStore) requireAffected(res sql.Result, id string) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, NewInternalError(err, "failed to read affected rows")
	}
	if affected == 0 {
		return false, NewNotFoundError(id)
	}
	return true, nil
}

func (s *BunAccountStore) mapReadError(err error, key string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return NewNotFoundError(key)
	}
	s.logger.Error("account store read failed", "key", key, "error", err)
	return NewInternalError(err, "failed to read account")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

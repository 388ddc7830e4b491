package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/clientdesk/clients-api/internal/core/domain"
	"github.com/clientdesk/clients-api/internal/core/ports"
)

var clientColumns = []string{
	"id", "owner_id", "name", "email", "phone", "active", "deleted",
	"favorite", "rating", "avatar", "created_at", "updated_at",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type clientRow struct {
	ID        int64          `db:"id"`
	OwnerID   sql.NullInt64  `db:"owner_id"`
	Name      string         `db:"name"`
	Email     string         `db:"email"`
	Phone     sql.NullString `db:"phone"`
	Active    bool           `db:"active"`
	Deleted   bool           `db:"deleted"`
	Favorite  bool           `db:"favorite"`
	Rating    float64        `db:"rating"`
	Avatar    sql.NullString `db:"avatar"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r clientRow) toDomain() *domain.Client {
	return &domain.Client{
		ID:        r.ID,
		OwnerID:   r.OwnerID.Int64,
		Name:      r.Name,
		Email:     r.Email,
		Phone:     r.Phone.String,
		Active:    r.Active,
		Deleted:   r.Deleted,
		Favorite:  r.Favorite,
		Rating:    r.Rating,
		Avatar:    r.Avatar.String,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// ClientRepository persists clients in the clients table. Uniqueness of
// (owner_id, email) is enforced by clients_owner_email_key.
type ClientRepository struct {
	db *sqlx.DB
}

var _ ports.ClientRepository = (*ClientRepository)(nil)

func NewClientRepository(db *sqlx.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) Create(ctx context.Context, c *domain.Client) error {
	query, args, err := psql.Insert("clients").
		Columns("owner_id", "name", "email", "phone", "active", "deleted", "favorite", "rating", "avatar", "created_at", "updated_at").
		Values(c.OwnerID, c.Name, c.Email, nullString(c.Phone), c.Active, c.Deleted, c.Favorite, c.Rating, nullString(c.Avatar), c.CreatedAt, c.UpdatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&c.ID); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrClientEmailTaken
		}
		return err
	}
	return nil
}

func (r *ClientRepository) FindByID(ctx context.Context, ownerID, id int64) (*domain.Client, error) {
	query, args, err := psql.Select(clientColumns...).
		From("clients").
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"owner_id": ownerID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var row clientRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrClientNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// List applies the filter in SQL. Deleted rows are only considered when a
// search term is present.
func (r *ClientRepository) List(ctx context.Context, f ports.ListClientsFilter) ([]*domain.Client, error) {
	qb := psql.Select(clientColumns...).
		From("clients").
		Where(sq.Eq{"owner_id": f.OwnerID})

	if f.Search != "" {
		pattern := "%" + likeEscaper.Replace(f.Search) + "%"
		qb = qb.Where(sq.Or{
			sq.ILike{"name": pattern},
			sq.ILike{"email": pattern},
			sq.ILike{"phone": pattern},
		})
	} else {
		qb = qb.Where(sq.Eq{"deleted": false})
	}
	if f.Name != "" {
		qb = qb.Where(sq.ILike{"name": "%" + likeEscaper.Replace(f.Name) + "%"})
	}
	if f.Email != "" {
		qb = qb.Where(sq.Eq{"email": f.Email})
	}
	if f.Active != nil {
		qb = qb.Where(sq.Eq{"active": *f.Active})
	}

	qb = qb.OrderBy("id ASC")
	if f.Limit > 0 {
		qb = qb.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		qb = qb.Offset(uint64(f.Offset))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	var rows []clientRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	clients := make([]*domain.Client, 0, len(rows))
	for _, row := range rows {
		clients = append(clients, row.toDomain())
	}
	return clients, nil
}

// Update writes only the supplied columns in one statement and returns the
// stored row, so there is no read-then-write window.
func (r *ClientRepository) Update(ctx context.Context, ownerID, id int64, ch domain.ClientChanges) (*domain.Client, error) {
	set := map[string]any{}
	if ch.Name != nil {
		set["name"] = *ch.Name
	}
	if ch.Email != nil {
		set["email"] = *ch.Email
	}
	if ch.Phone != nil {
		set["phone"] = nullString(*ch.Phone)
	}
	if ch.Active != nil {
		set["active"] = *ch.Active
	}
	if ch.Deleted != nil {
		set["deleted"] = *ch.Deleted
	}
	if ch.Favorite != nil {
		set["favorite"] = *ch.Favorite
	}
	if ch.Rating != nil {
		set["rating"] = *ch.Rating
	}
	if ch.Avatar != nil {
		set["avatar"] = nullString(*ch.Avatar)
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", domain.ErrInvalidInput)
	}
	updatedAt := ch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	set["updated_at"] = updatedAt

	query, args, err := psql.Update("clients").
		SetMap(set).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"owner_id": ownerID}).
		Suffix("RETURNING " + strings.Join(clientColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}

	var row clientRow
	if err := r.db.QueryRowxContext(ctx, query, args...).StructScan(&row); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, domain.ErrClientNotFound
		case isUniqueViolation(err):
			return nil, domain.ErrClientEmailTaken
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *ClientRepository) Delete(ctx context.Context, ownerID, id int64) error {
	query, args, err := psql.Delete("clients").
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"owner_id": ownerID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrClientNotFound
	}
	return nil
}

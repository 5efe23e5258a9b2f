package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"groupchat-service/internal/models"
)

var (
	ErrGroupNotFound      = errors.New("group not found")
	ErrDuplicateSecretKey = errors.New("secret key already in use")
)

// GroupRepository abstracts group persistence.
type GroupRepository interface {
	CreateGroup(ctx context.Context, adminID int64, name, secretKey string) (models.Group, error)
	GetGroup(ctx context.Context, groupID int64) (models.Group, error)
	GetGroupBySecretKey(ctx context.Context, secretKey string) (models.Group, error)
	ListGroups(ctx context.Context, nameQuery string) ([]models.Group, error)
	AddMember(ctx context.Context, groupID, userID int64) error
	RemoveMember(ctx context.Context, groupID, userID int64) error
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)
	ListMembers(ctx context.Context, groupID int64) ([]models.User, error)
	DeleteGroup(ctx context.Context, groupID int64) error
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// CreateGroup creates a group with its creator as admin and sole member.
func (r *GroupRepo) CreateGroup(ctx context.Context, adminID int64, name, secretKey string) (models.Group, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var group models.Group
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO groups (name, secret_key, admin_id) VALUES ($1, $2, $3)
         RETURNING id, name, secret_key, admin_id, created_at`,
		name, secretKey, adminID).StructScan(&group)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return models.Group{}, ErrDuplicateSecretKey
		}
		return models.Group{}, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)`,
		group.ID, adminID); err != nil {
		return models.Group{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Group{}, err
	}
	return group, nil
}

// GetGroup fetches a single group.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID int64) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group,
		`SELECT id, name, secret_key, admin_id, created_at FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// GetGroupBySecretKey resolves the join token.
func (r *GroupRepo) GetGroupBySecretKey(ctx context.Context, secretKey string) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group,
		`SELECT id, name, secret_key, admin_id, created_at FROM groups WHERE secret_key=$1`, secretKey)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// ListGroups returns groups whose name contains the query, newest first.
func (r *GroupRepo) ListGroups(ctx context.Context, nameQuery string) ([]models.Group, error) {
	groups := []models.Group{}
	err := r.db.SelectContext(ctx, &groups,
		`SELECT id, name, secret_key, admin_id, created_at FROM groups
         WHERE name ILIKE '%' || $1 || '%' ORDER BY created_at DESC`, nameQuery)
	return groups, err
}

// AddMember adds a user to a group. Idempotent.
func (r *GroupRepo) AddMember(ctx context.Context, groupID, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		groupID, userID)
	return err
}

// RemoveMember removes a user from a group. No-op if not a member.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID)
	return err
}

// IsMember checks membership.
func (r *GroupRepo) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2)`,
		groupID, userID)
	return exists, err
}

// ListMembers returns the group's members.
func (r *GroupRepo) ListMembers(ctx context.Context, groupID int64) ([]models.User, error) {
	members := []models.User{}
	err := r.db.SelectContext(ctx, &members,
		`SELECT u.id, u.username, u.created_at FROM users u
         INNER JOIN group_members gm ON gm.user_id = u.id
         WHERE gm.group_id=$1 ORDER BY u.username ASC`, groupID)
	return members, err
}

// DeleteGroup removes the group; membership and messages cascade.
func (r *GroupRepo) DeleteGroup(ctx context.Context, groupID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id=$1`, groupID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrGroupNotFound
	}
	return nil
}

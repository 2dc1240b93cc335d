package postgres

import (
	"context"
	"database/sql"

	"github.com/meshcompute/inference-marketplace/internal/domain"
	"github.com/meshcompute/inference-marketplace/internal/money"
	pgbase "github.com/meshcompute/inference-marketplace/pkg/storage/postgres"
)

func (s *Store) GetUser(ctx context.Context, id string) (domain.ApplicationUser, error) {
	const q = `SELECT id, active, balance_minor, resource_capabilities, role FROM users WHERE id = $1`
	var u domain.ApplicationUser
	var balanceMinor int64
	var resourceCapabilities sql.NullString
	row := s.Querier(ctx).QueryRowContext(ctx, q, id)
	if err := row.Scan(&u.ID, &u.Active, &balanceMinor, &resourceCapabilities, &u.Role); err != nil {
		return domain.ApplicationUser{}, mapErr(err)
	}
	u.Balance = money.Amount(balanceMinor)
	u.ResourceCapabilities = pgbase.NullStringToPtr(resourceCapabilities)
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u domain.ApplicationUser) (domain.ApplicationUser, error) {
	const q = `
		INSERT INTO users (id, active, balance_minor, resource_capabilities, role)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET
			active = EXCLUDED.active,
			balance_minor = EXCLUDED.balance_minor,
			resource_capabilities = EXCLUDED.resource_capabilities,
			role = EXCLUDED.role`
	if _, err := s.Querier(ctx).ExecContext(ctx, q, u.ID, u.Active, int64(u.Balance), pgbase.PtrToNullString(u.ResourceCapabilities), u.Role); err != nil {
		return domain.ApplicationUser{}, mapErr(err)
	}
	return u, nil
}

func (s *Store) CountActiveUsersExcept(ctx context.Context, excludeUserID string) (int, error) {
	const q = `SELECT COUNT(*) FROM users WHERE id <> $1 AND active`
	var n int
	row := s.Querier(ctx).QueryRowContext(ctx, q, excludeUserID)
	if err := row.Scan(&n); err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

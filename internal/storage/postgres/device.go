package postgres

import (
	"context"
	"database/sql"

	"github.com/meshcompute/inference-marketplace/internal/domain"
	pgbase "github.com/meshcompute/inference-marketplace/pkg/storage/postgres"
)

func (s *Store) UpsertDevice(ctx context.Context, d domain.Device) (domain.Device, error) {
	const q = `
		INSERT INTO devices (id, owner_provider_user_id, cpu_tops, gpu_tops, npu_tops, ram_mb,
			raw_capabilities, label, current_session_id, last_seen, last_disconnect_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			owner_provider_user_id = EXCLUDED.owner_provider_user_id,
			cpu_tops = EXCLUDED.cpu_tops,
			gpu_tops = EXCLUDED.gpu_tops,
			npu_tops = EXCLUDED.npu_tops,
			ram_mb = EXCLUDED.ram_mb,
			raw_capabilities = EXCLUDED.raw_capabilities,
			label = EXCLUDED.label,
			current_session_id = EXCLUDED.current_session_id,
			last_seen = EXCLUDED.last_seen,
			last_disconnect_reason = EXCLUDED.last_disconnect_reason`
	_, err := s.Querier(ctx).ExecContext(ctx, q,
		d.ID, d.OwnerProviderUserID, d.Capabilities.CPUTops, d.Capabilities.GPUTops, d.Capabilities.NPUTops,
		d.Capabilities.RAMMB, d.Capabilities.Raw, d.Label, pgbase.PtrToNullString(d.CurrentSessionID),
		d.LastSeen, d.LastDisconnectReason)
	if err != nil {
		return domain.Device{}, mapErr(err)
	}
	return d, nil
}

func (s *Store) GetDevice(ctx context.Context, id string) (domain.Device, error) {
	const q = `
		SELECT id, owner_provider_user_id, cpu_tops, gpu_tops, npu_tops, ram_mb, raw_capabilities,
			label, current_session_id, last_seen, last_disconnect_reason
		FROM devices WHERE id = $1`
	var d domain.Device
	var currentSessionID sql.NullString
	row := s.Querier(ctx).QueryRowContext(ctx, q, id)
	if err := row.Scan(&d.ID, &d.OwnerProviderUserID, &d.Capabilities.CPUTops, &d.Capabilities.GPUTops,
		&d.Capabilities.NPUTops, &d.Capabilities.RAMMB, &d.Capabilities.Raw, &d.Label,
		&currentSessionID, &d.LastSeen, &d.LastDisconnectReason); err != nil {
		return domain.Device{}, mapErr(err)
	}
	d.CurrentSessionID = pgbase.NullStringToPtr(currentSessionID)
	return d, nil
}

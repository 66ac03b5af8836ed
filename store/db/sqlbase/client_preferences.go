package sqlbase

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	"github.com/vosarsen/ai-admin-v2-sub004/store"
)

func (d *DB) GetClientPreferences(ctx context.Context, find *store.FindClientPreferences) (*store.ClientPreferences, error) {
	if find == nil {
		return nil, errors.New("find parameter cannot be nil")
	}

	a := d.newArgs()
	query := fmt.Sprintf("SELECT phone, company_id, data, created_ts, updated_ts FROM client_preferences WHERE phone = %s AND company_id = %s",
		a.add(find.Phone), a.add(find.CompanyID))

	var p store.ClientPreferences
	err := d.db.QueryRowContext(ctx, query, a.values...).Scan(&p.Phone, &p.CompanyID, &p.Data, &p.CreatedTs, &p.UpdatedTs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get client preferences")
	}
	return &p, nil
}

func (d *DB) UpsertClientPreferences(ctx context.Context, upsert *store.UpsertClientPreferences) (*store.ClientPreferences, error) {
	if upsert == nil {
		return nil, errors.New("upsert parameter cannot be nil")
	}

	now := d.now().Unix()
	a := d.newArgs()
	query := fmt.Sprintf(`INSERT INTO client_preferences (phone, company_id, data, created_ts, updated_ts)
		VALUES (%s, %s, %s, %s, %s)
		ON CONFLICT (phone, company_id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_ts = EXCLUDED.updated_ts
		RETURNING phone, company_id, data, created_ts, updated_ts`,
		a.add(upsert.Phone), a.add(upsert.CompanyID), a.add(upsert.Data), a.add(now), a.add(now))

	var p store.ClientPreferences
	if err := d.db.QueryRowContext(ctx, query, a.values...).Scan(&p.Phone, &p.CompanyID, &p.Data, &p.CreatedTs, &p.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert client preferences")
	}
	return &p, nil
}

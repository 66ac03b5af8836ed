package sqlbase

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/vosarsen/ai-admin-v2-sub004/store"
)

const bookingOwnershipColumns = "record_id, company_id, phone, idempotency_key, status, created_ts, updated_ts"

func scanBookingOwnership(row scanner) (*store.BookingOwnership, error) {
	var b store.BookingOwnership
	if err := row.Scan(&b.RecordID, &b.CompanyID, &b.Phone, &b.IdempotencyKey, &b.Status, &b.CreatedTs, &b.UpdatedTs); err != nil {
		return nil, err
	}
	return &b, nil
}

func (d *DB) UpsertBookingOwnership(ctx context.Context, upsert *store.UpsertBookingOwnership) (*store.BookingOwnership, error) {
	if upsert == nil {
		return nil, errors.New("upsert parameter cannot be nil")
	}
	status := upsert.Status
	if status == "" {
		status = store.BookingStatusCreated
	}

	now := d.now().Unix()
	a := d.newArgs()
	query := fmt.Sprintf(`INSERT INTO booking_ownership (record_id, company_id, phone, idempotency_key, status, created_ts, updated_ts)
		VALUES (%s, %s, %s, %s, %s, %s, %s)
		ON CONFLICT (record_id, company_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_ts = EXCLUDED.updated_ts
		RETURNING %s`,
		a.add(upsert.RecordID), a.add(upsert.CompanyID), a.add(upsert.Phone), a.add(upsert.IdempotencyKey),
		a.add(status), a.add(now), a.add(now), bookingOwnershipColumns)

	b, err := scanBookingOwnership(d.db.QueryRowContext(ctx, query, a.values...))
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert booking ownership")
	}
	return b, nil
}

func (d *DB) ListBookingOwnerships(ctx context.Context, find *store.FindBookingOwnership) ([]*store.BookingOwnership, error) {
	if find == nil {
		return nil, errors.New("find parameter cannot be nil")
	}

	a := d.newArgs()
	where := []string{"company_id = " + a.add(find.CompanyID)}
	if v := find.RecordID; v != nil {
		where = append(where, "record_id = "+a.add(*v))
	}
	if v := find.Phone; v != nil {
		where = append(where, "phone = "+a.add(*v))
	}
	if v := find.Status; v != nil {
		where = append(where, "status = "+a.add(*v))
	}

	query := fmt.Sprintf("SELECT %s FROM booking_ownership WHERE %s ORDER BY created_ts DESC, record_id DESC",
		bookingOwnershipColumns, joinWhere(where))
	rows, err := d.db.QueryContext(ctx, query, a.values...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list booking ownerships")
	}
	defer rows.Close()

	var list []*store.BookingOwnership
	for rows.Next() {
		b, err := scanBookingOwnership(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan booking ownership")
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

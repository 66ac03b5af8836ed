package sqlbase

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/vosarsen/ai-admin-v2-sub004/store"
)

const operationMetricsColumns = "id, hour_bucket, kind, name, request_count, success_count, latency_sum_ms, latency_p50_ms, latency_p95_ms"

func scanOperationMetrics(row scanner) (*store.OperationMetrics, error) {
	var m store.OperationMetrics
	var hour int64
	if err := row.Scan(&m.ID, &hour, &m.Kind, &m.Name, &m.RequestCount, &m.SuccessCount,
		&m.LatencySumMs, &m.LatencyP50Ms, &m.LatencyP95Ms); err != nil {
		return nil, err
	}
	m.HourBucket = time.Unix(hour, 0).UTC()
	return &m, nil
}

func (d *DB) UpsertOperationMetrics(ctx context.Context, upsert *store.UpsertOperationMetrics) (*store.OperationMetrics, error) {
	if upsert == nil {
		return nil, errors.New("upsert parameter cannot be nil")
	}

	a := d.newArgs()
	query := fmt.Sprintf(`
		INSERT INTO operation_metrics (hour_bucket, kind, name, request_count, success_count, latency_sum_ms, latency_p50_ms, latency_p95_ms)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s)
		ON CONFLICT (hour_bucket, kind, name) DO UPDATE SET
			request_count = operation_metrics.request_count + EXCLUDED.request_count,
			success_count = operation_metrics.success_count + EXCLUDED.success_count,
			latency_sum_ms = operation_metrics.latency_sum_ms + EXCLUDED.latency_sum_ms,
			latency_p50_ms = EXCLUDED.latency_p50_ms,
			latency_p95_ms = EXCLUDED.latency_p95_ms
		RETURNING %s`,
		a.add(upsert.HourBucket.Unix()), a.add(upsert.Kind), a.add(upsert.Name),
		a.add(upsert.RequestCount), a.add(upsert.SuccessCount), a.add(upsert.LatencySumMs),
		a.add(upsert.LatencyP50Ms), a.add(upsert.LatencyP95Ms), operationMetricsColumns)

	m, err := scanOperationMetrics(d.db.QueryRowContext(ctx, query, a.values...))
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert operation metrics")
	}
	return m, nil
}

func (d *DB) ListOperationMetrics(ctx context.Context, find *store.FindOperationMetrics) ([]*store.OperationMetrics, error) {
	if find == nil {
		return nil, errors.New("find parameter cannot be nil")
	}

	a := d.newArgs()
	where := []string{}
	if v := find.Kind; v != nil {
		where = append(where, "kind = "+a.add(*v))
	}
	if v := find.Name; v != nil {
		where = append(where, "name = "+a.add(*v))
	}
	if v := find.StartTime; v != nil {
		where = append(where, "hour_bucket >= "+a.add(v.Unix()))
	}
	if v := find.EndTime; v != nil {
		where = append(where, "hour_bucket <= "+a.add(v.Unix()))
	}

	query := fmt.Sprintf("SELECT %s FROM operation_metrics WHERE %s ORDER BY hour_bucket DESC, id DESC",
		operationMetricsColumns, joinWhere(where))
	if limit := find.Limit; limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", min(limit, 1000))
	}

	rows, err := d.db.QueryContext(ctx, query, a.values...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list operation metrics")
	}
	defer rows.Close()

	var list []*store.OperationMetrics
	for rows.Next() {
		m, err := scanOperationMetrics(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan operation metrics")
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (d *DB) DeleteOperationMetrics(ctx context.Context, delete *store.DeleteOperationMetrics) error {
	if delete == nil {
		return errors.New("delete parameter cannot be nil")
	}
	if delete.BeforeTime == nil {
		return errors.New("before_time is required for deletion")
	}

	a := d.newArgs()
	query := "DELETE FROM operation_metrics WHERE hour_bucket < " + a.add(delete.BeforeTime.Unix())
	if _, err := d.db.ExecContext(ctx, query, a.values...); err != nil {
		return errors.Wrap(err, "failed to delete operation metrics")
	}
	return nil
}

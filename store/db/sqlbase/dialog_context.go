package sqlbase

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/vosarsen/ai-admin-v2-sub004/store"
)

const dialogContextColumns = "phone, company_id, client_name, selection, pending_action, dialog_state, processing_marker, last_activity, updated_ts"

func scanDialogContext(row scanner) (*store.DialogContext, error) {
	var dc store.DialogContext
	if err := row.Scan(
		&dc.Phone, &dc.CompanyID, &dc.ClientName, &dc.Selection, &dc.PendingAction,
		&dc.DialogState, &dc.ProcessingMarker, &dc.LastActivity, &dc.UpdatedTs,
	); err != nil {
		return nil, err
	}
	return &dc, nil
}

func (d *DB) GetDialogContext(ctx context.Context, find *store.FindDialogContext) (*store.DialogContext, error) {
	if find == nil {
		return nil, errors.New("find parameter cannot be nil")
	}

	a := d.newArgs()
	query := fmt.Sprintf("SELECT %s FROM dialog_context WHERE phone = %s AND company_id = %s",
		dialogContextColumns, a.add(find.Phone), a.add(find.CompanyID))

	dc, err := scanDialogContext(d.db.QueryRowContext(ctx, query, a.values...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get dialog context")
	}
	return dc, nil
}

func (d *DB) UpdateDialogContext(ctx context.Context, update *store.UpdateDialogContext) (*store.DialogContext, error) {
	if update == nil {
		return nil, errors.New("update parameter cannot be nil")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	now := d.now().Unix()
	ins := d.newArgs()
	insert := fmt.Sprintf("INSERT INTO dialog_context (phone, company_id, updated_ts) VALUES (%s, %s, %s) ON CONFLICT (phone, company_id) DO NOTHING",
		ins.add(update.Phone), ins.add(update.CompanyID), ins.add(now))
	if _, err := tx.ExecContext(ctx, insert, ins.values...); err != nil {
		return nil, errors.Wrap(err, "failed to create dialog context")
	}

	a := d.newArgs()
	set := []string{}
	if v := update.ClientName; v != nil {
		set = append(set, "client_name = "+a.add(*v))
	}
	if v := update.Selection; v != nil {
		set = append(set, "selection = "+a.add(*v))
	}
	if v := update.PendingAction; v != nil {
		set = append(set, "pending_action = "+a.add(*v))
	}
	if v := update.DialogState; v != nil {
		set = append(set, "dialog_state = "+a.add(*v))
	}
	if v := update.ProcessingMarker; v != nil {
		set = append(set, "processing_marker = "+a.add(*v))
	}
	if v := update.LastActivity; v != nil {
		set = append(set, "last_activity = "+a.add(*v))
	}
	set = append(set, "updated_ts = "+a.add(now))

	query := fmt.Sprintf("UPDATE dialog_context SET %s WHERE phone = %s AND company_id = %s RETURNING %s",
		strings.Join(set, ", "), a.add(update.Phone), a.add(update.CompanyID), dialogContextColumns)
	dc, err := scanDialogContext(tx.QueryRowContext(ctx, query, a.values...))
	if err != nil {
		return nil, errors.Wrap(err, "failed to update dialog context")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit transaction")
	}
	return dc, nil
}

func (d *DB) ClearDialogContext(ctx context.Context, find *store.FindDialogContext) error {
	if find == nil {
		return errors.New("find parameter cannot be nil")
	}

	a := d.newArgs()
	query := fmt.Sprintf(`UPDATE dialog_context
		SET selection = '', pending_action = '', processing_marker = '', dialog_state = %s, updated_ts = %s
		WHERE phone = %s AND company_id = %s`,
		a.add(store.DialogStateIdle), a.add(d.now().Unix()), a.add(find.Phone), a.add(find.CompanyID))
	if _, err := d.db.ExecContext(ctx, query, a.values...); err != nil {
		return errors.Wrap(err, "failed to clear dialog context")
	}
	return nil
}

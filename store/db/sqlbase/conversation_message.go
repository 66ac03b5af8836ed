package sqlbase

import (
	"context"
	"fmt"
	"slices"

	"github.com/pkg/errors"

	"github.com/vosarsen/ai-admin-v2-sub004/store"
)

const defaultMessageWindow = 20

func (d *DB) CreateConversationMessage(ctx context.Context, create *store.ConversationMessage) (*store.ConversationMessage, error) {
	if create == nil {
		return nil, errors.New("create parameter cannot be nil")
	}

	msg := *create
	if msg.CreatedTs == 0 {
		msg.CreatedTs = d.now().Unix()
	}

	a := d.newArgs()
	query := fmt.Sprintf(`INSERT INTO conversation_message (uid, phone, company_id, role, content, created_ts)
		VALUES (%s, %s, %s, %s, %s, %s)
		RETURNING id`,
		a.add(msg.UID), a.add(msg.Phone), a.add(msg.CompanyID), a.add(string(msg.Role)), a.add(msg.Content), a.add(msg.CreatedTs))
	if err := d.db.QueryRowContext(ctx, query, a.values...).Scan(&msg.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create conversation message")
	}
	return &msg, nil
}

func (d *DB) ListConversationMessages(ctx context.Context, find *store.FindConversationMessage) ([]*store.ConversationMessage, error) {
	if find == nil {
		return nil, errors.New("find parameter cannot be nil")
	}

	limit := find.Limit
	if limit <= 0 {
		limit = defaultMessageWindow
	}

	a := d.newArgs()
	query := fmt.Sprintf(`SELECT id, uid, phone, company_id, role, content, created_ts
		FROM conversation_message
		WHERE phone = %s AND company_id = %s
		ORDER BY created_ts DESC, id DESC
		LIMIT %d`, a.add(find.Phone), a.add(find.CompanyID), limit)

	rows, err := d.db.QueryContext(ctx, query, a.values...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversation messages")
	}
	defer rows.Close()

	var list []*store.ConversationMessage
	for rows.Next() {
		var m store.ConversationMessage
		var role string
		if err := rows.Scan(&m.ID, &m.UID, &m.Phone, &m.CompanyID, &role, &m.Content, &m.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation message")
		}
		m.Role = store.ConversationMessageRole(role)
		list = append(list, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(list)
	return list, nil
}

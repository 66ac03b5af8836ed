package dialog

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/command"
	"github.com/vosarsen/ai-admin-v2-sub004/store"
)

// SaveCommandResults folds a batch of executed commands into the dialog.
// Mentions of service, staff, date and time become the selection. A
// successful booking creation clears the dialog instead and remembers the
// chosen staff and service as preferences.
func (m *Manager) SaveCommandResults(ctx context.Context, phone string, companyID int, results []*command.Result) error {
	var (
		sel     Selection
		pending *command.PendingAction
		created *command.BookingData
	)
	for _, r := range results {
		if r == nil {
			continue
		}
		sel = sel.Merge(selectionFromParams(r.Params))
		if r.Pending != nil {
			pending = r.Pending
		}
		if r.Success && r.Command == command.CreateBooking {
			if data, ok := r.Data.(command.BookingData); ok {
				created = &data
			}
		}
	}

	if created != nil {
		if err := m.ClearDialog(ctx, phone, companyID); err != nil {
			return err
		}
		prefs := make(map[string]any, 2)
		if created.StaffID > 0 {
			prefs[PrefFavoriteStaffID] = created.StaffID
		}
		if created.ServiceID > 0 {
			prefs[PrefFavoriteServiceID] = created.ServiceID
		}
		if len(prefs) == 0 {
			return nil
		}
		return m.SavePreferences(ctx, phone, companyID, prefs)
	}

	if sel.IsEmpty() && pending == nil {
		return nil
	}
	upd := &Update{PendingAction: pending}
	if !sel.IsEmpty() {
		active := store.DialogStateActive
		upd.Selection = &sel
		upd.DialogState = &active
	}
	return m.SaveContext(ctx, phone, companyID, upd)
}

func selectionFromParams(params map[string]string) Selection {
	cmd := command.Command{Params: params}
	sel := Selection{
		Service: cmd.Param("service_name", "service"),
		Staff:   cmd.Param("staff_name", "staff"),
		Date:    cmd.Param("date", "new_date"),
		Time:    cmd.Param("time", "new_time"),
	}
	sel.ServiceID, _ = strconv.Atoi(cmd.Param("service_id"))
	sel.StaffID, _ = strconv.Atoi(cmd.Param("staff_id"))

	if dt := cmd.Param("datetime", "new_datetime"); dt != "" {
		date, clock, ok := strings.Cut(strings.Replace(dt, "T", " ", 1), " ")
		sel.Date = date
		if ok {
			sel.Time = clock
		}
	}
	return sel
}

// ResolvePendingAction tests text against the pending action of c. A number
// within range resolves it into the command to run; anything else clears it
// and reports false so the message is processed normally. Either way the
// pending action is gone afterwards.
func (m *Manager) ResolvePendingAction(ctx context.Context, c *Context, text string) (*command.Command, bool, error) {
	pending := c.PendingAction
	if pending == nil {
		return nil, false, nil
	}
	c.PendingAction = nil
	if err := m.SaveContext(ctx, c.Phone, c.CompanyID, &Update{ClearPending: true}); err != nil {
		return nil, false, errors.Wrap(err, "clear pending action")
	}

	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), ".")))
	if err != nil || n < 1 || n > len(pending.Options) {
		return nil, false, nil
	}
	option := pending.Options[n-1]

	if pending.Type != command.PendingCancelBooking {
		m.logger.Warn("unknown pending action type", slog.String("type", pending.Type))
		return nil, false, nil
	}
	return &command.Command{
		Name:   command.CancelBooking,
		Params: map[string]string{"record_id": strconv.FormatInt(option.RecordID, 10)},
	}, true, nil
}

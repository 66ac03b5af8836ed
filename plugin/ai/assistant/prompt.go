package assistant

import (
	"fmt"
	"strings"
	"time"

	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/dialog"
	"github.com/vosarsen/ai-admin-v2-sub004/server/service/catalog"
	"github.com/vosarsen/ai-admin-v2-sub004/server/timezone"
	"github.com/vosarsen/ai-admin-v2-sub004/store"
)

// promptServiceLimit caps how many ranked services are listed in the prompt.
const promptServiceLimit = 20

const commandGrammar = `Команды пишутся в квадратных скобках: [ИМЯ ключ: значение, ключ: "значение с запятой"].
Доступные команды:
[SEARCH_SLOTS service_id: ID, staff_id: ID, date: YYYY-MM-DD] - свободное время
[CREATE_BOOKING service_id: ID, staff_id: ID, datetime: "YYYY-MM-DD HH:MM"] - создать запись
[CANCEL_BOOKING record_id: ID] - отменить запись
[RESCHEDULE_BOOKING record_id: ID, new_datetime: "YYYY-MM-DD HH:MM"] - перенести запись
[CONFIRM_BOOKING record_id: ID] - подтвердить визит
[MARK_NO_SHOW record_id: ID] - отметить неявку
[SHOW_PRICES service: название] - цены
[SEARCH_SERVICES service: название] - найти услуги
[SEARCH_STAFF service: название] - мастера
[SHOW_STAFF_INFO staff_id: ID] - о мастере
[SHOW_BOOKINGS intent: cancel] - записи клиента; intent: cancel предлагает выбрать запись для отмены
[SAVE_PREFERENCES ключ: значение] - запомнить пожелания клиента
Не сообщай об успехе записи или отмены до результата команды.`

// BuildSystemPrompt renders the system prompt for c at now.
func BuildSystemPrompt(c *dialog.Context, now time.Time) string {
	loc := c.Company.Location()
	local := now.In(loc)

	var b strings.Builder
	title := "салон"
	if c.Company != nil && c.Company.Title != "" {
		title = c.Company.Title
	}
	fmt.Fprintf(&b, "Ты администратор салона «%s». Отвечай кратко и дружелюбно, на языке клиента.\n", title)
	fmt.Fprintf(&b, "Сейчас %s (%s).\n", local.Format("2006-01-02 15:04"), timezone.Weekday(local))
	if c.Company != nil {
		if c.Company.Address != "" {
			fmt.Fprintf(&b, "Адрес: %s.\n", c.Company.Address)
		}
		if c.Company.WorkingHours != "" {
			fmt.Fprintf(&b, "Часы работы: %s.\n", c.Company.WorkingHours)
		}
	}

	b.WriteString("\nУслуги (id: название, цена):\n")
	for i, s := range c.Services {
		if i == promptServiceLimit {
			break
		}
		fmt.Fprintf(&b, "%d: %s, %s ₽\n", s.ID, s.Title, priceRange(s))
	}

	if len(c.Staff) > 0 {
		b.WriteString("\nМастера (id: имя):\n")
		for _, st := range c.Staff {
			if !st.Bookable {
				continue
			}
			if st.Specialization != "" {
				fmt.Fprintf(&b, "%d: %s, %s\n", st.ID, st.Name, st.Specialization)
			} else {
				fmt.Fprintf(&b, "%d: %s\n", st.ID, st.Name)
			}
		}
	}

	b.WriteString("\nКлиент: ")
	switch {
	case c.ClientName != "" && !c.Client.IsNew():
		fmt.Fprintf(&b, "%s, визитов: %d.\n", c.ClientName, c.Client.VisitCount)
	case c.ClientName != "":
		fmt.Fprintf(&b, "%s, новый клиент.\n", c.ClientName)
	default:
		b.WriteString("новый клиент, имя неизвестно.\n")
	}

	if sel := c.Selection; !sel.IsEmpty() {
		b.WriteString("Уже выбрано:")
		if sel.Service != "" || sel.ServiceID != 0 {
			fmt.Fprintf(&b, " услуга %s (id %d);", sel.Service, sel.ServiceID)
		}
		if sel.Staff != "" || sel.StaffID != 0 {
			fmt.Fprintf(&b, " мастер %s (id %d);", sel.Staff, sel.StaffID)
		}
		if sel.Date != "" {
			fmt.Fprintf(&b, " дата %s;", sel.Date)
		}
		if sel.Time != "" {
			fmt.Fprintf(&b, " время %s;", sel.Time)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(commandGrammar)
	return b.String()
}

// BuildMessages returns the system prompt, the stored history and the new
// client text as generator input.
func BuildMessages(c *dialog.Context, text string, now time.Time) []Message {
	messages := make([]Message, 0, len(c.History)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: BuildSystemPrompt(c, now)})
	for _, h := range c.History {
		role := RoleUser
		if h.Role == string(store.ConversationMessageRoleAssistant) {
			role = RoleAssistant
		}
		messages = append(messages, Message{Role: role, Content: h.Content})
	}
	return append(messages, Message{Role: RoleUser, Content: text})
}

func priceRange(s *catalog.Service) string {
	if s.PriceMax > s.PriceMin {
		return fmt.Sprintf("%.0f–%.0f", s.PriceMin, s.PriceMax)
	}
	return fmt.Sprintf("%.0f", s.PriceMin)
}

package response

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/command"
	"github.com/vosarsen/ai-admin-v2-sub004/server/timezone"
)

// maxListedSlots bounds the slots spelled out in one reply.
const maxListedSlots = 12

// Messages holds the fixed phrases used in formatted and reconciled text.
type Messages struct {
	NoSlots        string // %s: date
	SlotsHeader    string // %s: date
	NoBookings     string
	BookingsHeader string
	ChooseToCancel string
	Done           map[string]string // per command name
	Failed         map[string]string // per command name
	SlotTaken      string
	Alternatives   string // %s: comma separated times
	TryLater       string
	NotOwner       string
	NeedDetails    string
	Fallback       string
	FallbackPhone  string // %s: company phone
	Currency       string
}

// DefaultMessages returns the Russian phrase set.
func DefaultMessages() Messages {
	return Messages{
		NoSlots:        "На %s свободного времени нет.",
		SlotsHeader:    "Свободное время на %s:",
		NoBookings:     "У вас нет предстоящих записей.",
		BookingsHeader: "Ваши записи:",
		ChooseToCancel: "Напишите номер записи, которую нужно отменить.",
		Done: map[string]string{
			command.CancelBooking: "Готово, запись отменена.",
		},
		Failed: map[string]string{
			command.CreateBooking:     "Не удалось создать запись.",
			command.CancelBooking:     "Не удалось отменить запись.",
			command.RescheduleBooking: "Не удалось перенести запись.",
			command.ConfirmBooking:    "Не удалось подтвердить запись.",
			command.MarkNoShow:        "Не удалось отметить неявку.",
		},
		SlotTaken:     "К сожалению, это время уже занято.",
		Alternatives:  "Могу предложить: %s.",
		TryLater:      "Сервис записи временно недоступен, попробуйте, пожалуйста, через несколько минут.",
		NotOwner:      "Не нашла такую запись среди ваших.",
		NeedDetails:   "Уточните, пожалуйста, услугу, дату и время.",
		Fallback:      "Пожалуйста, свяжитесь с администратором салона.",
		FallbackPhone: "Пожалуйста, позвоните нам: %s.",
		Currency:      "₽",
	}
}

// FormatResults renders the data of successful lookup results as text to
// append to the reply. Mutations are described by the generated text itself.
func FormatResults(results []*command.Result, loc *time.Location, msg Messages) string {
	var blocks []string
	for _, r := range results {
		if r == nil || !r.Success {
			continue
		}
		var block string
		switch data := r.Data.(type) {
		case command.SlotsData:
			block = formatSlots(data, msg)
		case []command.PriceItem:
			block = formatPrices(data, msg)
		case command.BookingsData:
			block = formatBookings(data, r.Pending, loc, msg)
		}
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	return strings.Join(blocks, "\n\n")
}

func formatSlots(data command.SlotsData, msg Messages) string {
	date := humanDate(data.Date)
	if len(data.Slots) == 0 {
		return fmt.Sprintf(msg.NoSlots, date)
	}

	parts := make([]string, 0, min(len(data.Slots), maxListedSlots))
	for i, s := range data.Slots {
		if i == maxListedSlots {
			break
		}
		if s.StaffName != "" && data.Staff == "" {
			parts = append(parts, s.Time+" ("+s.StaffName+")")
			continue
		}
		parts = append(parts, s.Time)
	}
	return fmt.Sprintf(msg.SlotsHeader, date) + " " + strings.Join(parts, ", ")
}

func formatPrices(items []command.PriceItem, msg Messages) string {
	lines := make([]string, 0, len(items))
	for _, p := range items {
		lines = append(lines, "• "+p.Service+": "+formatPrice(p, msg.Currency))
	}
	return strings.Join(lines, "\n")
}

func formatPrice(p command.PriceItem, currency string) string {
	lo := strconv.FormatFloat(p.PriceMin, 'f', -1, 64)
	if p.PriceMax <= p.PriceMin {
		return lo + " " + currency
	}
	return lo + "–" + strconv.FormatFloat(p.PriceMax, 'f', -1, 64) + " " + currency
}

func formatBookings(data command.BookingsData, pending *command.PendingAction, loc *time.Location, msg Messages) string {
	if len(data.Bookings) == 0 {
		return msg.NoBookings
	}
	lines := []string{msg.BookingsHeader}
	if pending != nil {
		for i, o := range pending.Options {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, o.Label))
		}
		lines = append(lines, msg.ChooseToCancel)
		return strings.Join(lines, "\n")
	}
	for _, b := range data.Bookings {
		line := "• " + timezone.FormatSlot(b.Datetime, loc)
		if len(b.Services) > 0 {
			line += " " + strings.Join(b.Services, ", ")
		}
		if b.Staff != "" {
			line += " (" + b.Staff + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func humanDate(iso string) string {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return iso
	}
	return t.Format(timezone.DayLayout)
}

package response

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/breaker"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/command"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/ratelimit"
	"github.com/vosarsen/ai-admin-v2-sub004/server/service/booking"
)

// FailureKind selects the remediation offered for a failed command.
type FailureKind int

const (
	FailureGeneric FailureKind = iota
	FailureSlotUnavailable
	FailureTryLater
	FailureNotOwner
	FailureValidation
)

// ClassifyFailure maps a failed result onto a remediation.
func ClassifyFailure(r *command.Result) FailureKind {
	err := r.Err
	switch {
	case err == nil:
		if booking.ClassifyError(errors.New(r.Error)) == booking.ClassSlotUnavailable {
			return FailureSlotUnavailable
		}
		return FailureGeneric
	case errors.Is(err, booking.ErrSlotUnavailable):
		return FailureSlotUnavailable
	case breaker.IsOpen(err), errors.Is(err, breaker.ErrTimeout), ratelimit.IsRateLimited(err):
		return FailureTryLater
	case errors.Is(err, booking.ErrNotOwner):
		return FailureNotOwner
	case errors.Is(err, command.ErrValidation), errors.Is(err, booking.ErrValidation):
		return FailureValidation
	case booking.ClassifyError(err) == booking.ClassSlotUnavailable:
		return FailureSlotUnavailable
	}
	return FailureGeneric
}

// successPhrases claim an outcome that a failed mutation contradicts.
var successPhrases = map[string][]string{
	command.CreateBooking: {
		`вы записаны`, `записала вас`, `записал вас`, `запись создана`, `жд[её]м вас`,
		`you(?:'re| are) booked`, `booked you`, `booking (?:is )?confirmed`, `see you`,
	},
	command.CancelBooking: {
		`запись отменена`, `отменила (?:вашу )?запись`, `отменил (?:вашу )?запись`,
		`booking (?:has been |is )?cancell?ed`, `cancell?ed your booking`,
	},
	command.RescheduleBooking: {
		`запись перенесена`, `перенесла (?:вашу )?запись`, `перенес (?:вашу )?запись`,
		`booking (?:has been |is )?(?:moved|rescheduled)`, `rescheduled your booking`,
	},
	command.ConfirmBooking: {
		`запись подтверждена`, `подтвердила (?:вашу )?запись`, `booking (?:has been |is )?confirmed`,
	},
	command.MarkNoShow: {
		`отметила неявку`, `no-show (?:has been )?recorded`,
	},
}

var successPatterns = compileSuccessPatterns()

// Each pattern matches the whole sentence containing a claim.
func compileSuccessPatterns() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(successPhrases))
	for name, phrases := range successPhrases {
		out[name] = regexp.MustCompile(`(?i)[^.!?\n]*(?:` + strings.Join(phrases, "|") + `)[^.!?\n]*[.!?]?`)
	}
	return out
}

// Reconcile rewrites text so it does not contradict failed results, then
// appends one remediation per kind of failure.
func Reconcile(text string, results []*command.Result, companyPhone string, loc *time.Location, msg Messages) string {
	var (
		remedies []string
		seen     = make(map[FailureKind]bool)
	)
	for _, r := range results {
		if r == nil || r.Success {
			continue
		}

		failed, isMutation := msg.Failed[r.Command]
		if isMutation {
			var replaced bool
			text, replaced = replaceClaims(text, r.Command, failed)
			if !replaced {
				remedies = append(remedies, failed)
			}
		}

		kind := ClassifyFailure(r)
		if seen[kind] {
			continue
		}
		seen[kind] = true
		if remedy := remediation(kind, r, companyPhone, loc, msg); remedy != "" {
			remedies = append(remedies, remedy)
		}
	}

	parts := make([]string, 0, len(remedies)+1)
	if t := strings.TrimSpace(text); t != "" {
		parts = append(parts, t)
	}
	parts = append(parts, remedies...)
	return strings.Join(parts, " ")
}

// replaceClaims substitutes the first claiming sentence and drops the rest.
func replaceClaims(text, name, failed string) (string, bool) {
	re, ok := successPatterns[name]
	if !ok {
		return text, false
	}
	replaced := false
	text = re.ReplaceAllStringFunc(text, func(string) string {
		if replaced {
			return ""
		}
		replaced = true
		return " " + failed
	})
	return text, replaced
}

func remediation(kind FailureKind, r *command.Result, companyPhone string, loc *time.Location, msg Messages) string {
	switch kind {
	case FailureSlotUnavailable:
		var unavailable *booking.SlotUnavailableError
		if errors.As(r.Err, &unavailable) && len(unavailable.Alternatives) > 0 {
			times := make([]string, 0, len(unavailable.Alternatives))
			for _, s := range unavailable.Alternatives {
				times = append(times, s.Datetime.In(loc).Format("15:04"))
			}
			return msg.SlotTaken + " " + fmt.Sprintf(msg.Alternatives, strings.Join(times, ", "))
		}
		return msg.SlotTaken
	case FailureTryLater:
		return msg.TryLater
	case FailureNotOwner:
		return msg.NotOwner
	case FailureValidation:
		if r.Command == command.CreateBooking || r.Command == command.SearchSlots {
			return msg.NeedDetails
		}
		return ""
	}
	if companyPhone != "" {
		return fmt.Sprintf(msg.FallbackPhone, companyPhone)
	}
	return msg.Fallback
}

package command

import (
	"strconv"
	"strings"

	"github.com/vosarsen/ai-admin-v2-sub004/server/service/catalog"
)

// MatchService returns the first service whose title contains mention,
// ignoring case. Catalog order decides ties.
func MatchService(services []*catalog.Service, mention string) *catalog.Service {
	needle := normalize(mention)
	if needle == "" {
		return nil
	}
	for _, s := range services {
		if strings.Contains(normalize(s.Title), needle) {
			return s
		}
	}
	return nil
}

// MatchStaff returns the first staff member whose name contains mention,
// ignoring case.
func MatchStaff(staff []*catalog.Staff, mention string) *catalog.Staff {
	needle := normalize(mention)
	if needle == "" {
		return nil
	}
	for _, s := range staff {
		if strings.Contains(normalize(s.Name), needle) {
			return s
		}
	}
	return nil
}

// FilterServices returns every service whose title or category contains mention.
func FilterServices(services []*catalog.Service, mention string) []*catalog.Service {
	needle := normalize(mention)
	var out []*catalog.Service
	for _, s := range services {
		if needle == "" || strings.Contains(normalize(s.Title), needle) || strings.Contains(normalize(s.Category), needle) {
			out = append(out, s)
		}
	}
	return out
}

// resolveService accepts service_id or a free-text service name.
func resolveService(cmd Command, ec *ExecutionContext) *catalog.Service {
	if id, err := strconv.Atoi(cmd.Param("service_id")); err == nil && id > 0 {
		if s := catalog.ServiceByID(ec.Services, id); s != nil {
			return s
		}
		// Unknown to the cached catalog; the booking API is authoritative.
		return &catalog.Service{ID: id}
	}
	return MatchService(ec.Services, cmd.Param("service_name", "service"))
}

// resolveStaff accepts staff_id or a free-text staff name. A nil result with
// a non-empty mention means the name matched nobody.
func resolveStaff(cmd Command, ec *ExecutionContext) (*catalog.Staff, string) {
	if id, err := strconv.Atoi(cmd.Param("staff_id")); err == nil && id > 0 {
		if s := catalog.StaffByID(ec.Staff, id); s != nil {
			return s, ""
		}
		return &catalog.Staff{ID: id}, ""
	}
	mention := cmd.Param("staff_name", "staff")
	return MatchStaff(ec.Staff, mention), mention
}

// normalize lowercases and folds ё to е, which Russian texts mix freely.
func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "ё", "е")
}

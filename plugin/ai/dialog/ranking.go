package dialog

import (
	"sort"
	"strconv"
	"strings"

	"github.com/vosarsen/ai-admin-v2-sub004/server/service/catalog"
)

// Ranking weights.
const (
	popularityWeight = 10
	favoriteBonus    = 1000
	newClientBonus   = 50
)

var haircutMarkers = []string{"стрижк", "haircut"}

// RankServices scores services and sorts them by score, highest first.
// Equal scores keep catalog order.
func RankServices(services []*catalog.Service, client *catalog.Client, prefs map[string]any) {
	favorite, hasFavorite := intPref(prefs, PrefFavoriteServiceID)
	isNew := client.IsNew()

	for _, s := range services {
		score := float64(s.BookingCount * popularityWeight)
		s.IsFavorite = hasFavorite && s.ID == favorite
		if s.IsFavorite {
			score += favoriteBonus
		}
		if isNew && isHaircut(s) {
			score += newClientBonus
		}
		s.RankingScore = score
	}
	sort.SliceStable(services, func(i, j int) bool {
		return services[i].RankingScore > services[j].RankingScore
	})
}

func isHaircut(s *catalog.Service) bool {
	text := strings.ToLower(s.Title + " " + s.Category)
	for _, m := range haircutMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// intPref reads a numeric preference. JSON round trips turn ints into float64
// and command params arrive as strings.
func intPref(prefs map[string]any, key string) (int, bool) {
	switch v := prefs[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

package formulate

import "strings"

// Aspect expansion broadens recall for short document-wide questions like
// "how do I choose a location": one narrow query misses most of a
// checklist document, so a few predefined facet queries are searched
// alongside it.
const aspectQueryMaxRunes = 80

type aspectTrigger struct {
	patterns []string
	aspects  []string
}

var aspectTriggers = []aspectTrigger{
	{
		patterns: []string{"выбрать помещение", "выбор помещения", "выбрать локацию", "choose a location", "choose premises"},
		aspects: []string{
			"требования к помещению магазина",
			"критерии выбора локации",
			"чек-лист осмотра помещения",
			"ошибки при выборе помещения",
		},
	},
	{
		patterns: []string{"чек-лист", "чеклист", "checklist"},
		aspects: []string{
			"обязательные пункты чек-листа",
			"порядок проверки по чек-листу",
			"критерии оценки",
		},
	},
	{
		patterns: []string{"критерии выбора", "selection criteria", "как выбрать"},
		aspects: []string{
			"основные критерии выбора",
			"требования и стандарты",
			"рекомендации по выбору",
			"типичные ошибки",
		},
	},
}

// AspectQueries returns up to max predefined sub-queries when the query
// matches a known document-wide trigger phrase and is short enough to be
// a broad question rather than a specific one.
func AspectQueries(query string, max int) []string {
	if max <= 0 || len([]rune(query)) > aspectQueryMaxRunes {
		return nil
	}

	lower := strings.ToLower(query)

	for _, trigger := range aspectTriggers {
		for _, pattern := range trigger.patterns {
			if strings.Contains(lower, pattern) {
				if len(trigger.aspects) > max {
					return trigger.aspects[:max]
				}

				return trigger.aspects
			}
		}
	}

	return nil
}

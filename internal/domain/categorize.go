package domain

import "strings"

// CategoryGeneral is returned when no keyword matches.
const CategoryGeneral = "general"

// category pairs a label with the keyword substrings that select it.
type category struct {
	label    string
	keywords []string
}

// categories is evaluated top to bottom; the first label with any matching
// keyword wins. Reordering entries changes classification results.
var categories = []category{
	{"accident", []string{"accident", "crash", "collision", "pile-up"}},
	{"crime", []string{"murder", "robbery", "assault", "theft", "burglary"}},
	{"fire", []string{"fire", "blaze", "inferno"}},
	{"flood", []string{"flood", "inundation", "waterlogging"}},
	{"storm", []string{"storm", "cyclone", "typhoon", "wind"}},
	{"earthquake", []string{"earthquake", "tremor"}},
	{"traffic", []string{"traffic", "jam", "congestion"}},
	{"health", []string{"outbreak", "epidemic", "covid", "virus"}},
	{"weather", []string{"rain", "heatwave", "cold wave", "hail", "snow"}},
}

// Categories returns the category labels in precedence order.
func Categories() []string {
	labels := make([]string, len(categories))
	for i, c := range categories {
		labels[i] = c.label
	}
	return labels
}

// Categorize assigns a category label to free text.
func Categorize(title, summary string) string {
	text := strings.ToLower(title + " " + summary)
	for _, c := range categories {
		for _, kw := range c.keywords {
			if strings.Contains(text, kw) {
				return c.label
			}
		}
	}
	return CategoryGeneral
}

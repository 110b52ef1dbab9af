package rampdash

import "strings"

// Category is one of the fixed business expense categories.
type Category string

const (
	CategoryOfficeSupplies       Category = "Office Supplies"
	CategorySoftwareSaaS         Category = "Software & SaaS"
	CategoryMeals                Category = "Meals & Entertainment"
	CategoryTravel               Category = "Travel & Transportation"
	CategoryMarketing            Category = "Marketing & Advertising"
	CategoryProfessionalServices Category = "Professional Services"
	CategoryEquipment            Category = "Equipment & Hardware"
	CategoryUtilities            Category = "Utilities & Internet"
	CategoryInsurance            Category = "Insurance"
	CategoryTraining             Category = "Training & Education"
	CategoryOther                Category = "Other"
)

// categoryRule couples a category with its merchant keyword list and a
// human-readable description. The slice order is significant: keyword scoring
// keeps the first category on ties, and the status endpoint lists categories
// in this order.
type categoryRule struct {
	Category    Category
	Keywords    []string
	Description string
}

var categoryRules = []categoryRule{
	{
		Category:    CategoryOfficeSupplies,
		Keywords:    []string{"office", "supplies", "staples", "paper", "pen", "folder", "desk"},
		Description: "Office supplies and stationery",
	},
	{
		Category:    CategorySoftwareSaaS,
		Keywords:    []string{"software", "saas", "subscription", "license", "cloud", "aws", "google", "microsoft", "adobe"},
		Description: "Software licenses and SaaS subscriptions",
	},
	{
		Category:    CategoryMeals,
		Keywords:    []string{"restaurant", "food", "coffee", "lunch", "dinner", "starbucks", "uber eats", "doordash"},
		Description: "Business meals and entertainment",
	},
	{
		Category:    CategoryTravel,
		Keywords:    []string{"hotel", "flight", "uber", "lyft", "taxi", "airbnb", "airline", "rental car"},
		Description: "Business travel and transportation",
	},
	{
		Category:    CategoryMarketing,
		Keywords:    []string{"marketing", "advertising", "facebook ads", "google ads", "promotion", "campaign"},
		Description: "Marketing and advertising expenses",
	},
	{
		Category:    CategoryProfessionalServices,
		Keywords:    []string{"legal", "accounting", "consulting", "lawyer", "accountant", "advisor"},
		Description: "Professional and consulting services",
	},
	{
		Category:    CategoryEquipment,
		Keywords:    []string{"computer", "laptop", "monitor", "keyboard", "mouse", "hardware", "electronics"},
		Description: "Computer equipment and hardware",
	},
	{
		Category:    CategoryUtilities,
		Keywords:    []string{"internet", "phone", "electricity", "utilities", "telecom", "wireless"},
		Description: "Utilities and communication services",
	},
	{
		Category:    CategoryInsurance,
		Keywords:    []string{"insurance", "premium", "coverage", "policy"},
		Description: "Business insurance premiums",
	},
	{
		Category:    CategoryTraining,
		Keywords:    []string{"training", "course", "education", "conference", "seminar", "workshop"},
		Description: "Employee training and education",
	},
	{
		Category:    CategoryOther,
		Keywords:    nil,
		Description: "Other business expenses",
	},
}

// Categories returns every category in canonical order.
func Categories() []Category {
	out := make([]Category, len(categoryRules))
	for i, rule := range categoryRules {
		out[i] = rule.Category
	}
	return out
}

// CategoryDescriptions returns the category description table.
func CategoryDescriptions() map[Category]string {
	out := make(map[Category]string, len(categoryRules))
	for _, rule := range categoryRules {
		out[rule.Category] = rule.Description
	}
	return out
}

// ValidCategory reports whether name matches a known category exactly.
func ValidCategory(name string) bool {
	for _, rule := range categoryRules {
		if string(rule.Category) == name {
			return true
		}
	}
	return false
}

// ParseCategory resolves name to a known category, trimming surrounding
// whitespace. The second return is false when the name is not recognized.
func ParseCategory(name string) (Category, bool) {
	trimmed := strings.TrimSpace(name)
	for _, rule := range categoryRules {
		if string(rule.Category) == trimmed {
			return rule.Category, true
		}
	}
	return "", false
}

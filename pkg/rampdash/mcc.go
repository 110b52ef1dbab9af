package rampdash

import "strings"

// mccCategoryByCode maps specific merchant category codes to expense
// categories. A direct code hit carries higher confidence than a match on
// the code description.
var mccCategoryByCode = map[string]Category{
	"5734": CategorySoftwareSaaS, // Computer software stores
	"7372": CategorySoftwareSaaS, // Computer programming services
	"5943": CategoryOfficeSupplies,
	"5812": CategoryMeals, // Eating places
	"5814": CategoryMeals, // Fast food
	"4121": CategoryTravel, // Taxicabs and limousines
	"4411": CategoryTravel, // Cruise lines
	"3351": CategoryTravel, // Car rental
	"7011": CategoryTravel, // Hotels and motels
	"5541": CategoryTravel, // Service stations
	"5045": CategoryEquipment, // Computers and peripherals
	"4816": CategoryUtilities, // Computer network services
	"4814": CategoryUtilities, // Telecommunication services
}

// mccDescriptionRule matches a keyword inside the MCC description text.
// Rules are checked in order and the first hit wins.
type mccDescriptionRule struct {
	Keyword  string
	Category Category
}

var mccDescriptionRules = []mccDescriptionRule{
	{"software", CategorySoftwareSaaS},
	{"computer", CategoryEquipment},
	{"restaurant", CategoryMeals},
	{"hotel", CategoryTravel},
	{"office", CategoryOfficeSupplies},
	{"telecom", CategoryUtilities},
	{"insurance", CategoryInsurance},
}

// categoryForMCC resolves an MCC code and description to a category with a
// confidence tier: 0.8 for a direct code hit, 0.7 for a description keyword
// hit, 0.3 for the Other fallback.
func categoryForMCC(code, description string) (Category, float64) {
	if category, ok := mccCategoryByCode[strings.TrimSpace(code)]; ok {
		return category, 0.8
	}
	lowered := strings.ToLower(description)
	for _, rule := range mccDescriptionRules {
		if strings.Contains(lowered, rule.Keyword) {
			return rule.Category, 0.7
		}
	}
	return CategoryOther, 0.3
}

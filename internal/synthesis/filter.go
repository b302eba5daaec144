package synthesis

import (
	"strings"

	"github.com/licenseiq/licenseiq/internal/types"
)

// royaltyTypeKeywords mark an entity type as describing a payment structure.
var royaltyTypeKeywords = []string{"royalty", "payment", "fee"}

// rateProperties mark an entity as carrying a rate even when its type is generic.
var rateProperties = []string{"rate", "percentage"}

// FilterRoyaltyEntities returns the entities that plausibly describe a
// royalty, payment, or fee structure, in input order. A property counts when
// its key is present, whatever its value.
func FilterRoyaltyEntities(entities []types.ExtractedEntity) []types.ExtractedEntity {
	var matched []types.ExtractedEntity
	for _, e := range entities {
		if isRoyaltyEntity(e) {
			matched = append(matched, e)
		}
	}
	return matched
}

func isRoyaltyEntity(e types.ExtractedEntity) bool {
	t := strings.ToLower(e.Type)
	for _, kw := range royaltyTypeKeywords {
		if strings.Contains(t, kw) {
			return true
		}
	}
	for _, key := range rateProperties {
		if _, ok := e.Properties[key]; ok {
			return true
		}
	}
	return false
}

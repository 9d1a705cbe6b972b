package postgres

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
)

// resultMessageJSON wraps a human status string in the metadata envelope
// consumers read at result.message.
func resultMessageJSON(message string) []byte {
	payload := map[string]interface{}{
		"result": map[string]string{"message": message},
	}
	b, _ := json.Marshal(payload)
	return b
}

// applyPaginationAndSort applies limit/offset and a whitelisted sort column.
func applyPaginationAndSort(query *gorm.DB, limit, offset int, sortBy, sortOrder string, allowed map[string]bool) *gorm.DB {
	if sortBy != "" && allowed[sortBy] {
		order := "asc"
		if sortOrder == "desc" {
			order = "desc"
		}
		query = query.Order(fmt.Sprintf("%s %s", sortBy, order))
	} else {
		query = query.Order("created_at desc")
	}

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	return query
}

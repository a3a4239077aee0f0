package engine

import (
	"bikedash/internal/models"
	"strconv"
)

var categoryLabels = map[string]map[int]string{
	"season":     {1: "Spring", 2: "Summer", 3: "Fall", 4: "Winter"},
	"yr":         {0: "2011", 1: "2012"},
	"holiday":    {0: "No", 1: "Yes"},
	"workingday": {0: "No", 1: "Yes"},
	"weekday":    {0: "Sun", 1: "Mon", 2: "Tue", 3: "Wed", 4: "Thu", 5: "Fri", 6: "Sat"},
	"mnth": {1: "Jan", 2: "Feb", 3: "Mar", 4: "Apr", 5: "May", 6: "Jun",
		7: "Jul", 8: "Aug", 9: "Sep", 10: "Oct", 11: "Nov", 12: "Dec"},
	"weathersit": {1: "Clear", 2: "Mist", 3: "Light precipitation", 4: "Heavy precipitation"},
}

// CategoryLabel names a coded value of column, e.g. season 1 -> "Spring".
// Dates print as YYYY-MM-DD; uncoded values print as numbers.
func CategoryLabel(column string, v float64) string {
	if column == DateColumn {
		return models.Day(int32(v)).String()
	}
	if codes, ok := categoryLabels[column]; ok && v == float64(int(v)) {
		if l, ok := codes[int(v)]; ok {
			return l
		}
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package search

import (
	"fmt"
	"time"
)

// DefaultCategory is the HitResult value watched when none is configured.
const DefaultCategory = "Home Run"

// BuildQuery returns the search expression for the category's plays on
// the current date in loc, newest first.
func BuildQuery(now time.Time, loc *time.Location, category string) string {
	if loc == nil {
		loc = time.UTC
	}
	if category == "" {
		category = DefaultCategory
	}
	return fmt.Sprintf("HitResult = [%q] AND Date = [%q] Order By Timestamp DESC",
		category, now.In(loc).Format(time.DateOnly))
}

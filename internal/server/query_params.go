package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
)

func parseSnowflakeID(value string) (snowflake.ID, bool) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return 0, false
	}
	return parsed, true
}

// parseSnowflakeIDs accepts ids as JSON strings, which keeps 64-bit values
// intact in JavaScript clients.
func parseSnowflakeIDs(values []string) ([]snowflake.ID, bool) {
	ids := make([]snowflake.ID, 0, len(values))
	for _, value := range values {
		id, ok := parseSnowflakeID(value)
		if !ok {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

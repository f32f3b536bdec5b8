package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// GET /api/events/{id}/remote
// pledgeball:event:{id}
func RemoteEventKey(eventID int64) string {
	return fmt.Sprintf("pledgeball:event:%d", eventID)
}

// GET /api/pledges/definitions
// pledgeball:definitions:{k=v:...} with filters in sorted key order so the
// same filter set always maps to the same key.
func PledgeDefinitionsKey(filters map[string]string) string {
	if len(filters) == 0 {
		return "pledgeball:definitions:all"
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.PathEscape(k)+"="+url.PathEscape(filters[k]))
	}
	return "pledgeball:definitions:" + strings.Join(parts, ":")
}

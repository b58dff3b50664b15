package activity

import (
	"regexp"
	"strconv"
	"strings"
)

var versionSuffix = regexp.MustCompile(`_V\d+$`)

// baseResultName derives the unversioned result container name from an
// activity type: ACTIVITY_TYPE_CREATE_SUB_ORGANIZATION_V7 becomes
// createSubOrganizationResult.
func baseResultName(activityType string) string {
	t := strings.TrimPrefix(strings.TrimSpace(activityType), "ACTIVITY_TYPE_")
	t = versionSuffix.ReplaceAllString(t, "")
	parts := strings.Split(strings.ToLower(t), "_")
	var b strings.Builder
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i == 0 {
			b.WriteString(part)
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	b.WriteString("Result")
	return b.String()
}

// resultKey picks the versioned result container to merge: among the keys
// actually present in activity.result, the one matching the operation's base
// name with the highest V suffix wins (the bare name counts as V0). Returns
// empty when no key matches.
func resultKey(activityType string, keys []string) string {
	base := baseResultName(activityType)
	best := ""
	bestVersion := -1
	for _, k := range keys {
		switch {
		case k == base:
			if bestVersion < 0 {
				best, bestVersion = k, 0
			}
		case strings.HasPrefix(k, base+"V"):
			n, err := strconv.Atoi(k[len(base)+1:])
			if err == nil && n > bestVersion {
				best, bestVersion = k, n
			}
		}
	}
	return best
}

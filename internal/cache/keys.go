package cache

// Key construction for the derived read views. All keys carry the scope
// they belong to so invalidation can hit them exactly (stats) or by
// prefix (search results).

const (
	projectStatsPrefix = "stats:project:"
	issueStatsPrefix   = "stats:issue:"
	searchPrefix       = "search:project:"
)

// ProjectStatsKey is the exact-match key for a project's cached stats.
func ProjectStatsKey(projectID string) string {
	return projectStatsPrefix + projectID
}

// IssueStatsKey is the exact-match key for an issue's cached stats.
func IssueStatsKey(issueID string) string {
	return issueStatsPrefix + issueID
}

// SearchResultsKey caches one search result set scoped to a project.
func SearchResultsKey(projectID, query string) string {
	return searchPrefix + projectID + ":q:" + query
}

// SearchPattern matches every cached search result for a project.
func SearchPattern(projectID string) string {
	return searchPrefix + projectID + ":*"
}

package analyzer

import "fmt"

// Recommendations derives deterministic, human-readable advisories from the
// three analyses. It is a pure function; output order is fixed: URL
// findings, content findings, rapid-duplicate findings, same-hour findings,
// then the overall efficiency summary.
func Recommendations(url URLReport, content ContentReport, temporal TemporalReport) []string {
	var recs []string

	if len(url.DuplicateURLs) > 0 {
		recs = append(recs, fmt.Sprintf(
			"Found %d URLs with duplicates (%d extra documents). Recommend keeping only the latest version of each URL.",
			len(url.DuplicateURLs), url.TotalDuplicates,
		))
	}
	if content.DuplicateGroupsN > 0 {
		recs = append(recs, fmt.Sprintf(
			"Found %d groups of identical content (%d duplicates). Consider removing content duplicates even if URLs differ.",
			content.DuplicateGroupsN, content.TotalDuplicates,
		))
	}
	if temporal.RapidDuplicates > 0 {
		recs = append(recs, fmt.Sprintf(
			"Found %d rapid duplicates (within 5 minutes). Consider adding delay between visits to the same URL.",
			temporal.RapidDuplicates,
		))
	}
	if temporal.SameHourDuplicates > 0 {
		recs = append(recs, fmt.Sprintf(
			"Found %d URLs visited multiple times in the same hour. Consider hourly deduplication checks.",
			temporal.SameHourDuplicates,
		))
	}

	efficiency := 0.0
	if url.TotalDocuments > 0 {
		efficiency = float64(url.UniqueURLs) / float64(url.TotalDocuments) * 100
	}
	recs = append(recs, fmt.Sprintf(
		"Current efficiency: %.1f%% (%d/%d unique). Potential space savings: %d documents.",
		efficiency, url.UniqueURLs, url.TotalDocuments, url.TotalDocuments-url.UniqueURLs,
	))

	return recs
}

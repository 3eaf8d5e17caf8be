package types

// CollegeSummary is the listing projection returned by the preferences query.
type CollegeSummary struct {
	ID          int    `json:"id"`
	CollegeName string `json:"collegeName"`
	ProgramName string `json:"programName"`
}

// CollegeComparison is the projection returned by the compare endpoint.
type CollegeComparison struct {
	ID          int    `json:"id"`
	CollegeName string `json:"collegeName"`
	ProgramName string `json:"programName"`
	OpeningRank int    `json:"openingRank"`
	ClosingRank int    `json:"closingRank"`
}

// EligibleColleges is a page of preference-matched colleges.
type EligibleColleges struct {
	Colleges       []CollegeSummary `json:"colleges"`
	CurrentPage    int              `json:"currentPage"`
	TotalDocuments int              `json:"totalDocuments"`
}

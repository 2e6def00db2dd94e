package domain

// FetchResult is one assembled page of records. When AuthorizationDenied is
// set the result is empty and both count fields are zero; denial
// short-circuits before any store round-trip.
type FetchResult struct {
	Records             []Record `json:"records"`
	TotalCount          int      `json:"totalCount"`
	MoreRecords         bool     `json:"moreRecords"`
	AuthorizationDenied bool     `json:"authorizationDenied"`
}

// DeniedResult returns the canonical empty, denied page.
func DeniedResult() *FetchResult {
	return &FetchResult{Records: []Record{}, AuthorizationDenied: true}
}

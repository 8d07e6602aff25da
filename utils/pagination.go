package utils

const pageSizeDefault = 20
const pageSizeMax = 100

// GetPaginationParams converts 1-based page/limit query values into an offset
// and limit. Missing or invalid values fall back to defaults; the limit is
// capped at a maximum value.
func GetPaginationParams(page *int, limit *int) (int, int) {
	finalPage := 1
	finalLimit := pageSizeDefault

	if page != nil && *page >= 1 {
		finalPage = *page
	}

	if limit != nil && *limit > 0 {
		finalLimit = min(*limit, pageSizeMax)
	}

	return (finalPage - 1) * finalLimit, finalLimit
}

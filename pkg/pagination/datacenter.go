package pagination

import "context"

// DefaultDataCenterMaxResults asks the server for its own maximum page size.
const DefaultDataCenterMaxResults = -1

// DataCenterStrategy pages with a startAt offset via POST search.
type DataCenterStrategy struct {
	pager *pager
}

// PagedIssuesRequest advances startAt by the returned window while the
// reported total lies beyond it.
func (s *DataCenterStrategy) PagedIssuesRequest(ctx context.Context, apiURL, query string, maxResults *int) ([]Ticket, error) {
	size := DefaultDataCenterMaxResults
	if maxResults != nil {
		size = *maxResults
	}
	url := searchURL(apiURL, "search")

	var (
		tickets []Ticket
		startAt *int
	)
	for page := 1; ; page++ {
		var resp dataCenterSearchResponse
		err := s.pager.postPage(ctx, url, dataCenterSearchRequest{
			JQL:        query,
			MaxResults: size,
			Fields:     Fields,
			StartAt:    startAt,
		}, &resp)
		if err != nil {
			return nil, s.pager.fail(err, page)
		}

		tickets = append(tickets, resp.Issues...)
		s.pager.pageDone(page, len(resp.Issues))

		// A non-positive window would never advance.
		if resp.MaxResults <= 0 {
			return tickets, nil
		}

		last := resp.StartAt + resp.MaxResults
		if resp.Total <= last {
			return tickets, nil
		}
		startAt = &last
	}
}

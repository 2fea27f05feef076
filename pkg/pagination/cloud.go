package pagination

import "context"

// DefaultCloudMaxResults is the page size requested from Jira Cloud when
// none is given.
const DefaultCloudMaxResults = 5000

// CloudStrategy pages with nextPageToken via POST search/jql.
type CloudStrategy struct {
	pager *pager
}

// PagedIssuesRequest follows nextPageToken until a response omits it.
func (s *CloudStrategy) PagedIssuesRequest(ctx context.Context, apiURL, query string, maxResults *int) ([]Ticket, error) {
	size := DefaultCloudMaxResults
	if maxResults != nil {
		size = *maxResults
	}
	url := searchURL(apiURL, "search/jql")

	var (
		tickets   []Ticket
		pageToken *string
	)
	for page := 1; ; page++ {
		var resp cloudSearchResponse
		err := s.pager.postPage(ctx, url, cloudSearchRequest{
			JQL:           query,
			MaxResults:    size,
			Fields:        Fields,
			NextPageToken: pageToken,
		}, &resp)
		if err != nil {
			return nil, s.pager.fail(err, page)
		}

		tickets = append(tickets, resp.Issues...)
		s.pager.pageDone(page, len(resp.Issues))

		pageToken = resp.NextPageToken
		if pageToken == nil {
			return tickets, nil
		}
	}
}

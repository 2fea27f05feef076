package pagination

// Fields is the fixed field list requested for every search page.
var Fields = []string{
	"key",
	"issuetype",
	"summary",
	"status",
	"assignee",
	"priority",
	"parent",
	"created",
	"updated",
	"project",
}

// Ticket is one issue as returned by the search endpoint.
type Ticket struct {
	ID     string       `json:"id,omitempty"`
	Key    string       `json:"key"`
	Self   string       `json:"self,omitempty"`
	Fields TicketFields `json:"fields"`
}

// TicketFields holds the requested issue fields. Absent fields stay nil.
type TicketFields struct {
	IssueType *IssueType `json:"issuetype,omitempty"`
	Summary   string     `json:"summary"`
	Status    *Status    `json:"status,omitempty"`
	Assignee  *User      `json:"assignee,omitempty"`
	Priority  *Priority  `json:"priority,omitempty"`
	Parent    *Parent    `json:"parent,omitempty"`
	Created   string     `json:"created,omitempty"`
	Updated   string     `json:"updated,omitempty"`
	Project   *Project   `json:"project,omitempty"`
}

type IssueType struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	IconURL string `json:"iconUrl,omitempty"`
	Subtask bool   `json:"subtask,omitempty"`
}

type Status struct {
	ID             string          `json:"id,omitempty"`
	Name           string          `json:"name"`
	StatusCategory *StatusCategory `json:"statusCategory,omitempty"`
}

type StatusCategory struct {
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
}

// User is an assignee. Cloud identifies users by AccountID, Data Center by Name.
type User struct {
	AccountID    string `json:"accountId,omitempty"`
	Name         string `json:"name,omitempty"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

type Priority struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	IconURL string `json:"iconUrl,omitempty"`
}

// Parent references the epic or parent issue.
type Parent struct {
	ID     string        `json:"id,omitempty"`
	Key    string        `json:"key"`
	Fields *ParentFields `json:"fields,omitempty"`
}

type ParentFields struct {
	Summary string `json:"summary"`
}

type Project struct {
	ID   string `json:"id,omitempty"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// cloudSearchRequest is the body of POST search/jql.
type cloudSearchRequest struct {
	JQL           string   `json:"jql"`
	MaxResults    int      `json:"maxResults"`
	Fields        []string `json:"fields"`
	NextPageToken *string  `json:"nextPageToken,omitempty"`
}

type cloudSearchResponse struct {
	Issues        []Ticket `json:"issues"`
	NextPageToken *string  `json:"nextPageToken,omitempty"`
}

// dataCenterSearchRequest is the body of POST search.
type dataCenterSearchRequest struct {
	JQL        string   `json:"jql"`
	MaxResults int      `json:"maxResults"`
	Fields     []string `json:"fields"`
	StartAt    *int     `json:"startAt,omitempty"`
}

type dataCenterSearchResponse struct {
	Issues     []Ticket `json:"issues"`
	StartAt    int      `json:"startAt"`
	MaxResults int      `json:"maxResults"`
	Total      int      `json:"total"`
}

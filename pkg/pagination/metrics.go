package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_jira_search_pages_total",
		Help: "Total number of Jira search pages fetched by product",
	}, []string{"product"})

	issuesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_jira_search_issues_total",
		Help: "Total number of Jira issues fetched by product",
	}, []string{"product"})

	pageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_jira_search_failures_total",
		Help: "Total number of aborted Jira searches by product",
	}, []string{"product"})
)

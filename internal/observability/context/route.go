package context

import "strings"

const apiPrefix = "/api/v1/"

// RouteResource names the billing resource a route addresses, so
// "/api/v1/invoices/:id/send" is "invoices" and "/health" is "health".
// Subscription routes nest under companies and report as "subscription".
func RouteResource(route string) string {
	route = strings.TrimSpace(route)
	if route == "" {
		return "unknown"
	}
	if strings.HasPrefix(route, apiPrefix) {
		rest := strings.TrimPrefix(route, apiPrefix)
		if strings.HasPrefix(rest, "companies/:id/subscription") {
			return "subscription"
		}
		resource, _, _ := strings.Cut(rest, "/")
		return resource
	}
	return strings.Trim(route, "/")
}

// RouteTargetsCompany reports whether the route's :id parameter is a tenant id.
func RouteTargetsCompany(route string) bool {
	return strings.HasPrefix(strings.TrimSpace(route), apiPrefix+"companies/:id")
}

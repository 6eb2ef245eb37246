package httpserver

import (
	"net/http"
)

// forwardRoute maps a gateway route one-to-one onto an ad-server API path.
// {id} in upstreamPath is replaced by the escaped path value of the same
// name. params are merged over the caller's query string.
type forwardRoute struct {
	method       string
	pattern      string
	upstreamPath string
	params       func(r *http.Request) map[string]string
}

func campaignParam(r *http.Request) map[string]string {
	return map[string]string{"idcampaign": r.PathValue("id")}
}

var forwardRoutes = []forwardRoute{
	// Users
	{method: http.MethodGet, pattern: "/users", upstreamPath: "/user"},
	{method: http.MethodPost, pattern: "/users", upstreamPath: "/user"},
	{method: http.MethodGet, pattern: "/users/{id}", upstreamPath: "/user/{id}"},
	{method: http.MethodPut, pattern: "/users/{id}", upstreamPath: "/user/{id}"},
	{method: http.MethodDelete, pattern: "/users/{id}", upstreamPath: "/user/{id}"},

	// Reports
	{method: http.MethodGet, pattern: "/stats", upstreamPath: "/stats"},
	{method: http.MethodGet, pattern: "/events", upstreamPath: "/events"},
	{method: http.MethodGet, pattern: "/conversions", upstreamPath: "/conversion"},
	{method: http.MethodGet, pattern: "/statement", upstreamPath: "/statement"},

	// Campaigns
	{method: http.MethodGet, pattern: "/campaigns", upstreamPath: "/campaign"},
	{method: http.MethodPost, pattern: "/campaigns", upstreamPath: "/campaign"},
	{method: http.MethodGet, pattern: "/campaigns/{id}", upstreamPath: "/campaign/{id}"},
	{method: http.MethodPut, pattern: "/campaigns/{id}", upstreamPath: "/campaign/{id}"},
	{method: http.MethodDelete, pattern: "/campaigns/{id}", upstreamPath: "/campaign/{id}"},

	// Ads
	{method: http.MethodGet, pattern: "/campaigns/{id}/ads", upstreamPath: "/ad", params: campaignParam},
	{method: http.MethodPost, pattern: "/ads/assign", upstreamPath: "/ad/assign"},
	{method: http.MethodPost, pattern: "/ads", upstreamPath: "/ad"},
	{method: http.MethodGet, pattern: "/ads/{id}", upstreamPath: "/ad/{id}"},
	{method: http.MethodPut, pattern: "/ads/{id}", upstreamPath: "/ad/{id}"},
	{method: http.MethodDelete, pattern: "/ads/{id}", upstreamPath: "/ad/{id}"},

	// Sites
	{method: http.MethodGet, pattern: "/sites", upstreamPath: "/site"},
	{method: http.MethodPost, pattern: "/sites", upstreamPath: "/site"},
	{method: http.MethodGet, pattern: "/sites/{id}", upstreamPath: "/site/{id}"},
	{method: http.MethodPut, pattern: "/sites/{id}", upstreamPath: "/site/{id}"},
	{method: http.MethodDelete, pattern: "/sites/{id}", upstreamPath: "/site/{id}"},

	// Zones
	{method: http.MethodPost, pattern: "/zones/assign", upstreamPath: "/zone/assign"},
	{method: http.MethodGet, pattern: "/zones", upstreamPath: "/zone"},
	{method: http.MethodPost, pattern: "/zones", upstreamPath: "/zone"},
	{method: http.MethodGet, pattern: "/zones/{id}", upstreamPath: "/zone/{id}"},
	{method: http.MethodPut, pattern: "/zones/{id}", upstreamPath: "/zone/{id}"},
	{method: http.MethodDelete, pattern: "/zones/{id}", upstreamPath: "/zone/{id}"},

	// Payments and payouts
	{method: http.MethodGet, pattern: "/payments", upstreamPath: "/payment"},
	{method: http.MethodPost, pattern: "/payments", upstreamPath: "/payment"},
	{method: http.MethodGet, pattern: "/payouts", upstreamPath: "/payout"},
	{method: http.MethodPost, pattern: "/payouts", upstreamPath: "/payout"},

	// Referrals and transactions
	{method: http.MethodGet, pattern: "/referrals", upstreamPath: "/referral"},
	{method: http.MethodGet, pattern: "/transactions", upstreamPath: "/transaction"},
	{method: http.MethodPost, pattern: "/transactions", upstreamPath: "/transaction"},
	{method: http.MethodGet, pattern: "/transactions/{id}", upstreamPath: "/transaction/{id}"},

	// Dictionaries
	{method: http.MethodGet, pattern: "/dict", upstreamPath: "/dict"},
}

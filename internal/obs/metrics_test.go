package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                    "/",
		"/metrics":                            "/metrics",
		"/v1/campaigns/01ABC":                 "/v1/campaigns/:id",
		"/v1/campaigns/01ABC/mark-all-paid":   "/v1/campaigns/:id/mark-all-paid",
		"/v1/distributions/01ABC/mark-paid":   "/v1/distributions/:id/mark-paid",
		"/v1/invoices/01ABC/send":             "/v1/invoices/:id/send",
		"/v1/campaigns":                       "/v1/campaigns",
		"/v1/campaigns?status=active":         "/v1/campaigns",
		"/v1/unknown/01ABC":                   "/v1/unknown/01ABC",
		"/healthz":                            "/healthz",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

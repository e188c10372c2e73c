package ranking

func defaultTopics() map[string][]string {
	return map[string][]string{
		"pricing":       {"pricing", "price", "cost", "tier", "billing", "subscription", "invoice"},
		"scheduling":    {"schedul", "shift", "rota", "roster", "calendar"},
		"payroll":       {"payroll", "paycheck", "pay stub", "paystub", "salary", "wage"},
		"hiring":        {"hiring", "recruit", "applicant", "candidate", "job posting"},
		"onboarding":    {"onboard", "new hire", "orientation", "paperwork"},
		"compliance":    {"complian", "labor law", "regulation", "audit", "e-verify"},
		"integrations":  {"integrat", "webhook", "zapier", "quickbooks", "connector"},
		"security":      {"security", "secure", "sso", "password", "encrypt", "permission", "2fa"},
		"reporting":     {"report", "analytics", "dashboard", "export", "metric"},
		"mobile":        {"mobile", "android", "iphone", "app store"},
		"time-tracking": {"timesheet", "time clock", "clock in", "clock-in", "overtime", "attendance", "time tracking"},
		"support":       {"support", "help desk", "troubleshoot", "contact us", "ticket"},
	}
}

func defaultTechnicalTerms() []string {
	return []string{
		"api", "apis", "sdk", "webhook", "webhooks", "oauth", "sso", "saml", "scim", "ldap",
		"json", "xml", "csv", "endpoint", "endpoints", "schema", "database", "sql", "graphql",
		"rest", "latency", "encryption", "token", "tokens", "authentication", "configuration",
		"payload", "cli", "script", "integration", "sync", "regex", "dns", "ssl", "tls",
	}
}

var simplePhrases = []string{
	"simple", "simply", "basic", "basics", "beginner", "overview", "plain english",
	"in simple terms", "eli5", "non technical", "non-technical", "layman", "easy",
}

var (
	tablePhrases = []string{"compare", "comparison", "versus", "vs", "table", "difference between", "differences between"}
	stepPhrases  = []string{"how do i", "how to", "how can i", "steps", "step by step", "walk me through", "set up", "setup", "configure", "install"}
	listPhrases  = []string{"list", "types of", "kinds of", "examples of"}

	highUrgencyPhrases     = []string{"urgent", "urgently", "asap", "immediately", "emergency", "critical", "right now", "outage", "down", "not working", "broken"}
	elevatedUrgencyPhrases = []string{"soon", "quickly", "today", "deadline", "important", "priority"}

	clauseMarkers = []string{" and ", " or ", " but ", ","}
)

package schema

import (
	"fmt"
	"strings"
)

// CatalogEntry describes one built-in tool that skills may bind.
type CatalogEntry struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	RequiredConfigKeys []string `json:"required_config_keys"`
}

// Catalog is the fixed, read-only list of tools available to any skill.
// It is process-wide and never mutated at runtime, so unsynchronized
// concurrent reads are safe.
var Catalog = []CatalogEntry{
	{ID: "sms", Name: "send_sms", Description: "Send SMS to user (voice scenario)"},
	{ID: "email", Name: "send_email", Description: "Send email to user"},
	{ID: "google_calendar", Name: "google_calendar", Description: "Read and write Google Calendar (requires calendar configuration at skill level)", RequiredConfigKeys: []string{"calendar_id"}},
	{ID: "google_sheet", Name: "google_sheet", Description: "Read and write Google Sheets (requires sheet configuration at skill level)", RequiredConfigKeys: []string{"sheet_id"}},
	{ID: "shopify", Name: "shopify", Description: "Product recommendation from Shopify"},
	{ID: "amazon", Name: "amazon", Description: "Get product information from Amazon"},
	{ID: "rakuten", Name: "rakuten", Description: "E-commerce platform integration"},
	{ID: "logistics_tracking", Name: "logistics_tracking", Description: "Track logistics and shipping information"},
	{ID: "knowledge_search", Name: "knowledge_search", Description: "Knowledge-based reply (special: toggle switch in agent interface)"},
	{ID: "transfer", Name: "transfer_to_human", Description: "Transfer to human agent"},
}

// CatalogEntryByName looks up a catalog entry by tool name.
func CatalogEntryByName(name string) (CatalogEntry, bool) {
	for _, e := range Catalog {
		if e.Name == name {
			return e, true
		}
	}
	return CatalogEntry{}, false
}

// FormatCatalogPrompt renders the catalog as a numbered markdown block for
// injection into a prompt.
func FormatCatalogPrompt() string {
	var b strings.Builder
	for i, e := range Catalog {
		if i > 0 {
			b.WriteString("\n\n")
		}
		configInfo := "No config required"
		if len(e.RequiredConfigKeys) > 0 {
			configInfo = "Config required: " + strings.Join(e.RequiredConfigKeys, ", ")
		}
		fmt.Fprintf(&b, "%d. **%s**\n   - %s\n   - %s", i+1, e.Name, e.Description, configInfo)
	}
	return b.String()
}

// Package review holds the fixed presentation data of the contract review
// workspace (navigation, outline, document, context panel, quality footer)
// and the small derivations the pages compute from it.
package review

// NavItem is an entry of the top navigation bar
type NavItem struct {
	Label  string
	Href   string
	Active bool
}

var navItems = []NavItem{
	{Label: "Documents", Href: "/"},
	{Label: "Library", Href: "#"},
	{Label: "Deep Scan", Href: "/deep-scan"},
	{Label: "Reports", Href: "#"},
	{Label: "Settings", Href: "#"},
}

// Navigation returns the nav items with the one matching path marked active.
// Placeholder entries ("#") are never active.
func Navigation(path string) []NavItem {
	items := make([]NavItem, len(navItems))
	for i, item := range navItems {
		item.Active = item.Href != "#" && item.Href == path
		items[i] = item
	}
	return items
}

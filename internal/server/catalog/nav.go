package catalog

// NavItem is one entry of the dashboard sidebar. Entries without a
// collection are placeholders the front-end renders disabled.
type NavItem struct {
	Name       string `json:"name"`
	Href       string `json:"href"`
	Collection string `json:"collection,omitempty"`
	Enabled    bool   `json:"enabled"`
}

// Navigation returns the static sidebar.
func Navigation() []NavItem {
	return []NavItem{
		{Name: "Courses", Href: "/courses", Collection: "courses", Enabled: true},
		{Name: "Users", Href: "#"},
		{Name: "Products", Href: "/products", Collection: "products", Enabled: true},
		{Name: "News", Href: "/news", Collection: "news", Enabled: true},
		{Name: "Analytics", Href: "#"},
	}
}

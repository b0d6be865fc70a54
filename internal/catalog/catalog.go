// Package catalog holds the fixed registry of permission identifiers. The
// registry only changes through redeployment; every other component validates
// permission ids against it.
package catalog

// Category groups permissions for display.
type Category string

const (
	CategoryGeneral   Category = "GENERAL"
	CategoryBusiness  Category = "BUSINESS"
	CategoryResources Category = "RESOURCES"
	CategorySystem    Category = "SYSTEM"
)

// Definition describes a single grantable capability.
type Definition struct {
	ID          string
	Label       string
	Category    Category
	Description string
}

// Categories lists catalog categories in display order.
func Categories() []Category {
	return []Category{CategoryGeneral, CategoryBusiness, CategoryResources, CategorySystem}
}

var definitions = []Definition{
	{ID: "dashboard.view", Label: "View dashboard", Category: CategoryGeneral, Description: "Access the overview dashboard"},
	{ID: "contacts.view", Label: "View contacts", Category: CategoryGeneral, Description: "Read contact form submissions"},
	{ID: "contacts.manage", Label: "Manage contacts", Category: CategoryGeneral, Description: "Answer and archive contact submissions"},

	{ID: "properties.view", Label: "View properties", Category: CategoryBusiness, Description: "Read property listings"},
	{ID: "properties.manage", Label: "Manage properties", Category: CategoryBusiness, Description: "Create and edit property listings"},
	{ID: "finance.view", Label: "View finance", Category: CategoryBusiness, Description: "Read financial ledgers"},
	{ID: "finance.manage", Label: "Manage finance", Category: CategoryBusiness, Description: "Create and edit ledger entries"},
	{ID: "projects.view", Label: "View projects", Category: CategoryBusiness, Description: "Read project boards"},
	{ID: "projects.manage", Label: "Manage projects", Category: CategoryBusiness, Description: "Create and move project cards"},

	{ID: "catalog.view", Label: "View catalog", Category: CategoryResources, Description: "Read the product and service catalog"},
	{ID: "catalog.manage", Label: "Manage catalog", Category: CategoryResources, Description: "Edit catalog items"},
	{ID: "fleet.view", Label: "View fleet", Category: CategoryResources, Description: "Read vehicle records and assignments"},
	{ID: "fleet.manage", Label: "Manage fleet", Category: CategoryResources, Description: "Edit vehicle records and assignments"},
	{ID: "hr.view", Label: "View HR", Category: CategoryResources, Description: "Read staff records"},
	{ID: "hr.manage", Label: "Manage HR", Category: CategoryResources, Description: "Edit staff records"},

	{ID: "users.view", Label: "View users", Category: CategorySystem, Description: "Read user accounts"},
	{ID: "users.manage", Label: "Manage users", Category: CategorySystem, Description: "Edit user accounts and overrides"},
	{ID: "roles.manage", Label: "Manage roles", Category: CategorySystem, Description: "Edit role permission matrices"},
	{ID: "audit.view", Label: "View audit log", Category: CategorySystem, Description: "Read the privilege change history"},
	{ID: "settings.manage", Label: "Manage settings", Category: CategorySystem, Description: "Edit company-wide settings"},
}

var index = func() map[string]Definition {
	m := make(map[string]Definition, len(definitions))
	for _, def := range definitions {
		m[def.ID] = def
	}
	return m
}()

// All returns every definition in catalog order, grouped by category.
func All() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Exists reports whether id names a known permission.
func Exists(id string) bool {
	_, ok := index[id]
	return ok
}

// Get returns the definition for id.
func Get(id string) (Definition, bool) {
	def, ok := index[id]
	return def, ok
}

// ByCategory returns definitions keyed by category, preserving catalog order
// within each group.
func ByCategory() map[Category][]Definition {
	grouped := make(map[Category][]Definition, len(Categories()))
	for _, def := range definitions {
		grouped[def.Category] = append(grouped[def.Category], def)
	}
	return grouped
}

// Validate checks every id in perms against the catalog and reports the
// first unknown one. The whole set is rejected on the first miss so callers
// never apply a partial write.
func Validate(perms []string) (string, bool) {
	for _, id := range perms {
		if !Exists(id) {
			return id, false
		}
	}
	return "", true
}

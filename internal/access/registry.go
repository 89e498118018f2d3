package access

// PermissionMeta describes a catalogued permission string.
type PermissionMeta struct {
	Description string `json:"description"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Category    string `json:"category"`
	RiskLevel   string `json:"risk_level"`
}

// registry is the static permission catalog. It documents what a permission
// string grants; evaluation works on the strings themselves, so permissions
// absent from the catalog still evaluate normally.
var registry = map[string]PermissionMeta{
	"*": {
		Description: "Unrestricted access to every resource and action",
		Resource:    "*",
		Action:      "*",
		Category:    "administration",
		RiskLevel:   "critical",
	},
	"inspection.read": {
		Description: "View inspections and their findings",
		Resource:    "inspection",
		Action:      "read",
		Category:    "inspections",
		RiskLevel:   "low",
	},
	"inspection.write": {
		Description: "Create and edit inspections",
		Resource:    "inspection",
		Action:      "write",
		Category:    "inspections",
		RiskLevel:   "medium",
	},
	"inspection.delete": {
		Description: "Delete inspections",
		Resource:    "inspection",
		Action:      "delete",
		Category:    "inspections",
		RiskLevel:   "high",
	},
	"report.read": {
		Description: "View generated reports",
		Resource:    "report",
		Action:      "read",
		Category:    "reporting",
		RiskLevel:   "low",
	},
	"report.write": {
		Description: "Create and regenerate reports",
		Resource:    "report",
		Action:      "write",
		Category:    "reporting",
		RiskLevel:   "medium",
	},
	"form.read": {
		Description: "View form templates",
		Resource:    "form",
		Action:      "read",
		Category:    "content",
		RiskLevel:   "low",
	},
	"form.write": {
		Description: "Edit form templates",
		Resource:    "form",
		Action:      "write",
		Category:    "content",
		RiskLevel:   "medium",
	},
	"user.read": {
		Description: "View user accounts within the tenant",
		Resource:    "user",
		Action:      "read",
		Category:    "administration",
		RiskLevel:   "medium",
	},
	"user.manage": {
		Description: "Create, edit and disable user accounts",
		Resource:    "user",
		Action:      "manage",
		Category:    "administration",
		RiskLevel:   "high",
	},
	"role.manage": {
		Description: "Edit roles and their permission sets",
		Resource:    "role",
		Action:      "manage",
		Category:    "administration",
		RiskLevel:   "critical",
	},
	"tenant.manage": {
		Description: "Edit tenant-wide settings",
		Resource:    "tenant",
		Action:      "manage",
		Category:    "administration",
		RiskLevel:   "critical",
	},
	"audit.read": {
		Description: "View the security audit log",
		Resource:    "audit",
		Action:      "read",
		Category:    "security",
		RiskLevel:   "medium",
	},
}

// ExternalCustomerRoutes is the fixed allow-list of routes an external
// customer principal may request. Patterns ending in "*" are prefix matches.
var ExternalCustomerRoutes = []string{
	"/portal",
	"/portal/*",
	"/inspections/shared/*",
	"/reports/shared/*",
	"/profile",
	"/support/*",
}

// LookupPermission returns catalog metadata for a permission string.
func LookupPermission(perm string) (PermissionMeta, bool) {
	meta, ok := registry[perm]
	return meta, ok
}

// RegisteredPermissions returns a copy of the full catalog.
func RegisteredPermissions() map[string]PermissionMeta {
	out := make(map[string]PermissionMeta, len(registry))
	for k, v := range registry {
		out[k] = v
	}
	return out
}

// ExternalRouteAllowList returns a copy of the external-customer allow-list,
// used both by the gate itself and for populating decision restrictions.
func ExternalRouteAllowList() []string {
	out := make([]string, len(ExternalCustomerRoutes))
	copy(out, ExternalCustomerRoutes)
	return out
}

package shared

// PropertyCatalog lists the property-management permissions.
func PropertyCatalog() []PermissionSeed {
	return []PermissionSeed{
		{"properties.read", "View property listings", "Properties", "read"},
		{"properties.create", "Add new properties", "Properties", "create"},
		{"properties.update", "Edit property details", "Properties", "update"},
		{"properties.delete", "Remove properties", "Properties", "delete"},
		{"leases.read", "View leases", "Leases", "read"},
		{"leases.manage", "Create and terminate leases", "Leases", "manage"},
		{"maintenance.read", "View maintenance requests", "Maintenance", "read"},
		{"maintenance.create", "Submit maintenance requests", "Maintenance", "create"},
		{"maintenance.update", "Update maintenance request status", "Maintenance", "update"},
		{"clients.read", "View clients", "Clients", "read"},
		{"clients.manage", "Create and edit clients", "Clients", "manage"},
		{"financials.read", "View financial records", "Financials", "read"},
		{"financials.manage", "Record payments and expenses", "Financials", "manage"},
		{"financials.export", "Export financial records", "Financials", "export"},
		{"messages.read", "Read messages", "Messages", "read"},
		{"messages.create", "Send messages", "Messages", "create"},
		{"reports.read", "View reports", "Reports", "read"},
		{"reports.export", "Export reports", "Reports", "export"},
	}
}

// Catalog returns the full default permission catalog.
func Catalog() []PermissionSeed {
	return append(CoreCatalog(), PropertyCatalog()...)
}

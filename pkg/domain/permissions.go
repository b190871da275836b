package domain

// Resource is an area of the application guarded by role permissions.
type Resource string

const (
	ResourceProperties   Resource = "properties"
	ResourceParticipants Resource = "participants"
	ResourcePayments     Resource = "payments"
	ResourceMaintenance  Resource = "maintenance"
	ResourceDocuments    Resource = "documents"
	ResourceReports      Resource = "reports"
	ResourceUsers        Resource = "users"
	ResourceIncidents    Resource = "incidents"
	ResourceContractors  Resource = "contractors"
	ResourceAuditLogs    Resource = "auditLogs"
)

// Action is an operation on a Resource.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionExport Action = "export"
)

type grants map[Resource][]Action

var (
	crud     = []Action{ActionView, ActionCreate, ActionUpdate, ActionDelete}
	cru      = []Action{ActionView, ActionCreate, ActionUpdate}
	viewOnly = []Action{ActionView}
)

var adminGrants = grants{
	ResourceProperties:   crud,
	ResourceParticipants: crud,
	ResourcePayments:     crud,
	ResourceMaintenance:  crud,
	ResourceDocuments:    crud,
	ResourceReports:      {ActionView, ActionExport},
	ResourceUsers:        crud,
	ResourceIncidents:    crud,
	ResourceContractors:  crud,
	ResourceAuditLogs:    viewOnly,
}

var propertyManagerGrants = grants{
	ResourceProperties:   cru,
	ResourceParticipants: cru,
	ResourcePayments:     cru,
	ResourceMaintenance:  crud,
	ResourceDocuments:    crud,
	ResourceReports:      {ActionView, ActionExport},
	ResourceIncidents:    cru,
	ResourceContractors:  cru,
}

var staffGrants = grants{
	ResourceProperties:   viewOnly,
	ResourceParticipants: viewOnly,
	ResourceMaintenance:  cru,
	ResourceDocuments:    {ActionView, ActionCreate},
	ResourceIncidents:    cru,
	ResourceContractors:  viewOnly,
}

var accountantGrants = grants{
	ResourceProperties:   viewOnly,
	ResourceParticipants: viewOnly,
	ResourcePayments:     cru,
	ResourceMaintenance:  viewOnly,
	ResourceDocuments:    {ActionView, ActionCreate},
	ResourceReports:      {ActionView, ActionExport},
	ResourceIncidents:    viewOnly,
	ResourceContractors:  viewOnly,
}

// External providers only see the work they are assigned.
var externalProviderGrants = grants{
	ResourceMaintenance: {ActionView, ActionUpdate},
	ResourceDocuments:   {ActionView, ActionCreate},
	ResourceIncidents:   viewOnly,
}

// HasPermission reports whether role may perform action on resource.
func HasPermission(role Role, resource Resource, action Action) bool {
	var g grants
	switch role {
	case RoleAdmin:
		g = adminGrants
	case RolePropertyManager:
		g = propertyManagerGrants
	case RoleStaff:
		g = staffGrants
	case RoleAccountant:
		g = accountantGrants
	case RoleExternalProvider:
		g = externalProviderGrants
	default:
		return false
	}
	for _, a := range g[resource] {
		if a == action {
			return true
		}
	}
	return false
}

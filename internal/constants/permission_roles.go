package constants

// PermissionRoles maps each permission to the roles allowed to perform it.
var PermissionRoles = map[string][]string{
	ViewData:             {Guest, UserRole, Investor, Staff, Admin, Superadmin},
	ManageCollections:    {Admin, Superadmin},
	ManageUnits:          {Admin, Superadmin},
	ManageTiers:          {Admin, Superadmin},
	SubmitOwnershipEntry: {Staff, Admin, Superadmin},
	ApproveOwnership:     {Admin, Superadmin},
	ApproveManualPayment: {Admin, Superadmin},
	ViewPayments:         {Staff, Admin, Superadmin},
	ManageAffiliates:     {Admin, Superadmin},
	MarkCommissionPaid:   {Admin, Superadmin},
	RunReconciliation:    {Admin, Superadmin},
	AssignRole:           {Admin, Superadmin},
	RemoveUser:           {Admin, Superadmin},
}

// AllowedRole returns true if role is in the list of allowed roles for the permission.
func AllowedRole(permission, role string) bool {
	roles, ok := PermissionRoles[permission]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

package constants

const (
	ViewData             = "view_data"
	ManageCollections    = "manage_collections"
	ManageUnits          = "manage_units"
	ManageTiers          = "manage_tiers"
	SubmitOwnershipEntry = "submit_ownership_entry"
	ApproveOwnership     = "approve_ownership"
	ApproveManualPayment = "approve_manual_payment"
	ViewPayments         = "view_payments"
	ManageAffiliates     = "manage_affiliates"
	MarkCommissionPaid   = "mark_commission_paid"
	RunReconciliation    = "run_reconciliation"
	AssignRole           = "assign_role"
	RemoveUser           = "remove_user"
)

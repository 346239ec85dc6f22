package models

// ResolveWarning reports a non-fatal condition hit while learning from a
// resolution, such as a participant domain already aliased to another account.
type ResolveWarning struct {
	Domain    string `json:"domain"`
	AccountID string `json:"account_id"`
	Message   string `json:"message"`
}

// ResolveResult is the outcome of resolving a single call
type ResolveResult struct {
	CallID          string           `json:"call_id"`
	AccountID       string           `json:"account_id"`
	ContactsCreated int              `json:"contacts_created"`
	AliasesCreated  int              `json:"aliases_created"`
	Warnings        []ResolveWarning `json:"warnings,omitempty"`
}

// BulkResolveResult is the outcome of an atomic bulk resolve
type BulkResolveResult struct {
	AccountID       string           `json:"account_id"`
	ResolvedIDs     []string         `json:"resolved_ids"`
	ContactsCreated int              `json:"contacts_created"`
	AliasesCreated  int              `json:"aliases_created"`
	Warnings        []ResolveWarning `json:"warnings,omitempty"`
}

// DismissResult is the outcome of an atomic dismiss
type DismissResult struct {
	DismissedIDs []string `json:"dismissed_ids"`
}

// CreateAccountResult is the outcome of provisioning a new account from a
// call and resolving the call to it.
type CreateAccountResult struct {
	Account Account       `json:"account"`
	Resolve ResolveResult `json:"resolve"`
}

package models

// ResolveCallRequest assigns one call to an account
type ResolveCallRequest struct {
	AccountID string `json:"account_id" validate:"required"`
}

// BulkResolveRequest assigns a batch of calls to one account atomically
type BulkResolveRequest struct {
	CallIDs   []string `json:"call_ids" validate:"required,min=1"`
	AccountID string   `json:"account_id" validate:"required"`
}

// DismissRequest hides a batch of queued calls atomically
type DismissRequest struct {
	CallIDs []string `json:"call_ids" validate:"required,min=1"`
}

// CreateAccountRequest provisions a new account from a call
type CreateAccountRequest struct {
	Name          string `json:"name" validate:"required"`
	PrimaryDomain string `json:"primary_domain,omitempty"`
}

// MergeAccountsRequest merges the source account into the target
type MergeAccountsRequest struct {
	SourceAccountID string `json:"source_account_id" validate:"required"`
	TargetAccountID string `json:"target_account_id" validate:"required"`
}

package flows

// IssueFailureKind classifies issuance failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureAccess
	IssueFailureRefresh
)

// IssueResult carries a freshly signed pair or the failing step.
type IssueResult struct {
	Failure      IssueFailureKind
	Err          error
	AccessToken  string
	RefreshToken string
}

// IssueDeps captures the two signing namespaces.
type IssueDeps struct {
	SignAccess  func(userID, provider string) (string, error)
	SignRefresh func(userID, provider string) (string, error)
}

// RunIssue signs a new access token and a new refresh token for one identity.
// The pair is only returned when both signatures succeed.
func RunIssue(userID, provider string, deps IssueDeps) IssueResult {
	access, err := deps.SignAccess(userID, provider)
	if err != nil {
		return IssueResult{Failure: IssueFailureAccess, Err: err}
	}

	refresh, err := deps.SignRefresh(userID, provider)
	if err != nil {
		return IssueResult{Failure: IssueFailureRefresh, Err: err}
	}

	return IssueResult{
		Failure:      IssueFailureNone,
		AccessToken:  access,
		RefreshToken: refresh,
	}
}

package domain

// Market is the subset of Polymarket market metadata the runner needs: the
// condition id and its two outcome tokens.
type Market struct {
	ConditionID string
	Question    string
	Slug        string
	Outcomes    [2]string // e.g. ["Yes","No"]
	TokenIDs    [2]string // ERC-1155 token IDs
	Active      bool
	Closed      bool
	// NegRisk markets settle through the neg-risk exchange contract.
	NegRisk bool
}

// MainToken is the first outcome's token (Yes on binary markets).
func (m Market) MainToken() string { return m.TokenIDs[0] }

// CounterToken is the second outcome's token.
func (m Market) CounterToken() string { return m.TokenIDs[1] }

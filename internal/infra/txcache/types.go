package txcache

// Bundle is a set of transactions submitted to the transaction cache as a
// unit.
type Bundle struct {
	ID            string   `json:"id,omitempty"`
	Transactions  []string `json:"txs"`
	BlockNumber   uint64   `json:"blockNumber,omitempty"`
	ReplacementID string   `json:"replacementUuid,omitempty"`
}

// Transaction is a single raw transaction held by the cache.
type Transaction struct {
	Hash string `json:"hash"`
	Data string `json:"data"`
}

type bundlesResponse struct {
	Bundles []Bundle `json:"bundles"`
}

type bundleResponse struct {
	Bundle Bundle `json:"bundle"`
}

type transactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
}

type permissionCheckRequest struct {
	Subject string `json:"sub"`
}

// Pagination carries optional cursor/limit query parameters for list calls.
type Pagination struct {
	Cursor string
	Limit  int
}

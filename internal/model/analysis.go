package model

// TextSignal summarizes the diff over the extracted page text.
type TextSignal struct {
	// Readable is true when the readability service supplied the text for
	// both versions.
	Readable bool `json:"readable"`

	// ContentTier names which fallback tier produced the compared text:
	// "readability", "main-content" or "normalized".
	ContentTier string `json:"content_tier"`

	// KeyTerms maps each changed key term to its net change
	// (insertions minus deletions).
	KeyTerms map[string]int `json:"key_terms,omitempty"`

	KeyTermsChanged     bool `json:"key_terms_changed"`
	KeyTermsChangeCount int  `json:"key_terms_change_count"`

	// PercentChanged is the proportion of changed characters over total
	// characters, 0 when the total is 0.
	PercentChanged float64 `json:"percent_changed"`

	// DiffHash fingerprints the changed segments so identical changes on
	// different pages can be grouped.
	DiffHash string `json:"diff_hash"`

	// DiffCount is the number of changed segments.
	DiffCount int `json:"diff_count"`

	// DiffLength is the total length of changed text.
	DiffLength int `json:"diff_length"`

	// DiffMaxLength is the length of the single longest contiguous changed
	// span.
	DiffMaxLength int `json:"diff_max_length"`
}

// SourceSignal summarizes the diff over normalized raw markup.
type SourceSignal struct {
	DiffHash   string  `json:"diff_hash"`
	DiffCount  int     `json:"diff_count"`
	DiffLength int     `json:"diff_length"`
	DiffRatio  float64 `json:"diff_ratio"`
}

// LinksSignal summarizes the diff over extracted hyperlink targets.
type LinksSignal struct {
	DiffHash  string  `json:"diff_hash"`
	DiffCount int     `json:"diff_count"`
	DiffRatio float64 `json:"diff_ratio"`

	// RemovedSelfLink is true when a link pointing at the page itself
	// disappeared, which usually means the page was pulled from navigation.
	RemovedSelfLink bool `json:"removed_self_link"`
}

// RedirectInfo describes the redirect behavior observed on one version.
type RedirectInfo struct {
	// Server is the server-side redirect chain from capture metadata.
	Server []string `json:"server,omitempty"`

	// Client is the target of a client-side (meta refresh) redirect, if any.
	Client string `json:"client,omitempty"`

	// FinalTarget is the canonicalized final landing URL after applying both
	// chains; empty when the version does not redirect.
	FinalTarget string `json:"final_target,omitempty"`
}

// RedirectSignal compares redirect behavior between the two versions.
type RedirectSignal struct {
	A RedirectInfo `json:"a"`
	B RedirectInfo `json:"b"`

	// Changed is true when the canonicalized final redirect target differs.
	Changed bool `json:"changed"`

	// ClientGained/ClientLost flag a client-side redirect appearing or
	// disappearing between a and b.
	ClientGained bool `json:"client_gained"`
	ClientLost   bool `json:"client_lost"`
}

// AnalysisResult is the outcome of comparing two specific versions, a (older)
// and b (newer). It is created per comparison and never mutated afterwards.
type AnalysisResult struct {
	// Priority is the combined review priority in [0, 1].
	Priority float64 `json:"priority"`

	// AID/BID identify the compared versions (a older, b newer).
	AID string `json:"a_id"`
	BID string `json:"b_id"`

	// RootPage is true when the page URL path is empty, "/" or "/index*".
	RootPage bool `json:"root_page"`

	// StatusChanged is true when the effective error/ok status transitioned
	// between a and b.
	StatusChanged bool `json:"status_changed"`

	// StatusA/StatusB are the effective statuses used for scoring.
	StatusA int `json:"status_a"`
	StatusB int `json:"status_b"`

	Links    LinksSignal    `json:"links"`
	Text     TextSignal     `json:"text"`
	Source   SourceSignal   `json:"source"`
	Redirect RedirectSignal `json:"redirect"`
}

// ChangeSpan is a minimal sub-range of a page's version history judged to
// contain one independent, above-threshold change. Start is the older
// boundary, End the newer one.
type ChangeSpan struct {
	Start    *Version        `json:"start"`
	End      *Version        `json:"end"`
	Analysis *AnalysisResult `json:"analysis"`
}

// PageResult is the full outcome of analyzing one page over a window: the
// overall analysis for the trimmed range plus zero or more localized spans.
type PageResult struct {
	Page    *Page           `json:"page"`
	Start   *Version        `json:"start,omitempty"`
	End     *Version        `json:"end,omitempty"`
	Overall *AnalysisResult `json:"overall,omitempty"`
	Changes []ChangeSpan    `json:"changes,omitempty"`

	// Err is non-nil when the page failed to analyze. It never crosses the
	// worker pool as a panic; it is always carried here.
	Err error `json:"-"`
}

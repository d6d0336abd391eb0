package models

// VerificationResult is the outcome of one claim verification. It is built
// fresh per request. Result is one of TRUE, FALSE, UNCERTAIN or ERROR and
// Error is only set for ERROR.
type VerificationResult struct {
	Claim      string    `json:"claim"`
	Evidence   string    `json:"evidence"`
	Result     string    `json:"result"`
	Confidence float64   `json:"confidence"`
	RawProbs   []float64 `json:"raw_probs"`
	Sources    []string  `json:"sources"`
	Error      string    `json:"error,omitempty"`
}

// VerificationLog is the analytics row written after /verify.
type VerificationLog struct {
	AccountID  string
	Claim      string
	Evidence   string
	Result     string
	Confidence float64
}

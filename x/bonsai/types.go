package bonsai

// Job states reported for sessions and SNARK jobs.
const (
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
	StatusTimedOut  = "TIMED_OUT"
	StatusAborted   = "ABORTED"
)

// IsTerminal reports whether a job status will not change anymore.
func IsTerminal(status string) bool {
	switch status {
	case StatusSucceeded, StatusFailed, StatusTimedOut, StatusAborted:
		return true
	default:
		return false
	}
}

// SessionCreate is the body of POST /sessions/create.
type SessionCreate struct {
	Image       string   `json:"img"`
	Input       string   `json:"input"`
	Assumptions []string `json:"assumptions"`
	ExecuteOnly bool     `json:"execute_only"`
}

// SessionStatus is the reply of GET /sessions/status/{id}.
type SessionStatus struct {
	Status      string   `json:"status"`
	ReceiptURL  *string  `json:"receipt_url,omitempty"`
	ErrorMsg    *string  `json:"error_msg,omitempty"`
	State       *string  `json:"state,omitempty"`
	ElapsedTime *float64 `json:"elapsed_time,omitempty"`
}

// Error returns the reported error message, if any.
func (s SessionStatus) Error() string {
	if s.ErrorMsg != nil {
		return *s.ErrorMsg
	}
	return ""
}

// SnarkProof holds the Groth16 coordinates as base-16 strings.
type SnarkProof struct {
	A      []string   `json:"a"`
	B      [][]string `json:"b"`
	C      []string   `json:"c"`
	Public []string   `json:"public,omitempty"`
}

// SnarkReceipt is the output of a finished SNARK job.
type SnarkReceipt struct {
	Snark           SnarkProof `json:"snark"`
	PostStateDigest Bytes      `json:"post_state_digest"`
	Journal         Bytes      `json:"journal"`
}

// SnarkStatus is the reply of GET /snark/status/{id}.
type SnarkStatus struct {
	Status   string        `json:"status"`
	Output   *SnarkReceipt `json:"output,omitempty"`
	ErrorMsg *string       `json:"error_msg,omitempty"`
}

// Error returns the reported error message, if any.
func (s SnarkStatus) Error() string {
	if s.ErrorMsg != nil {
		return *s.ErrorMsg
	}
	return ""
}

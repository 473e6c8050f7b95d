package context

import "fmt"

// WarnUsedPercent is the share of the budget above which a window is
// reported as nearly full.
const WarnUsedPercent = 90.0

// WindowInfo holds information about a context window.
type WindowInfo struct {
	// Total tokens available
	TotalTokens int `json:"total_tokens"`

	// Used tokens, including the system prompt
	UsedTokens int `json:"used_tokens"`

	// Remaining tokens
	RemainingTokens int `json:"remaining_tokens"`

	// Percentage used
	UsedPercent float64 `json:"used_percent"`

	// Source of the window size (model, config, budget)
	Source string `json:"source"`

	SystemTokens  int `json:"system_tokens"`
	InputUnits    int `json:"input_units"`
	RetainedUnits int `json:"retained_units"`
}

func newWindowInfo(total, used int, source string) *WindowInfo {
	remaining := total - used
	if remaining < 0 {
		remaining = 0
	}

	var usedPercent float64
	if total > 0 {
		usedPercent = float64(used) / float64(total) * 100
	}

	return &WindowInfo{
		TotalTokens:     total,
		UsedTokens:      used,
		RemainingTokens: remaining,
		UsedPercent:     usedPercent,
		Source:          source,
	}
}

// Dropped returns how many units sizing removed.
func (w *WindowInfo) Dropped() int {
	if w.RetainedUnits >= w.InputUnits {
		return 0
	}
	return w.InputUnits - w.RetainedUnits
}

// Status returns a descriptive status of the context window.
func (w *WindowInfo) Status() string {
	if w.RemainingTokens == 0 {
		return "full"
	}
	if w.UsedPercent >= WarnUsedPercent {
		return "warning"
	}
	return "ok"
}

// String returns a human-readable description.
func (w *WindowInfo) String() string {
	return fmt.Sprintf("%d/%d tokens (%.1f%% used, %s)",
		w.UsedTokens, w.TotalTokens, w.UsedPercent, w.Status())
}

package workflow

// ApprovalAggregator decides whether an approval completes a step.
// It is consulted before the instance advances. When it reports false
// the approval is recorded in history and the instance stays at the step.
type ApprovalAggregator interface {
	// Complete reports whether step is complete once actor approves it.
	// history is the instance history prior to this approval.
	Complete(step *Step, history []*HistoryEntry, actor string) bool
}

// SingleApproval completes a step on the first approval.
type SingleApproval struct{}

func (SingleApproval) Complete(*Step, []*HistoryEntry, string) bool { return true }

// DistinctApprovals requires Count distinct approvers on steps that
// require all approvals. Other steps complete on the first approval.
type DistinctApprovals struct {
	Count int
}

func (d DistinctApprovals) Complete(step *Step, history []*HistoryEntry, actor string) bool {
	if step == nil || !step.RequireAllApprovals || d.Count <= 1 {
		return true
	}
	approvers := map[string]struct{}{actor: {}}
	for _, h := range history {
		if h.DataAfter != nil && h.DataAfter.CurrentStep == step.Name &&
			(h.DataBefore == nil || h.DataBefore.CurrentStep != step.Name) {
			// step (re)entered: earlier approvals no longer count
			approvers = map[string]struct{}{actor: {}}
			continue
		}
		if h.Step == step.Name && h.Action == Approve && h.Actor != "" {
			approvers[h.Actor] = struct{}{}
		}
	}
	return len(approvers) >= d.Count
}

package agent

import (
	"github.com/wardenlabs/warden/internal/model"
)

// memoryCapacity is the ring size of remembered verdicts per call.
const memoryCapacity = 10

// MemoryEntry is one remembered (proposal, verdict) pair.
type MemoryEntry struct {
	Intent   model.Intent   `json:"intent"`
	Decision model.Decision `json:"decision"`
	Hits     []string       `json:"policy_hits"`
	Executed bool           `json:"executed"`
}

// Memory is a sliding window of recent proposal outcomes.
type Memory struct {
	entries []MemoryEntry
	total   int
}

// NewMemory builds an empty memory ring.
func NewMemory() *Memory {
	return &Memory{}
}

// Record appends an outcome, discarding the oldest past capacity.
func (m *Memory) Record(proposal model.ActionProposal, verdict model.GovernanceDecision, executed bool) {
	m.entries = append(m.entries, MemoryEntry{
		Intent:   proposal.Intent,
		Decision: verdict.Decision,
		Hits:     verdict.PolicyHits,
		Executed: executed,
	})
	if len(m.entries) > memoryCapacity {
		m.entries = m.entries[len(m.entries)-memoryCapacity:]
	}
	m.total++
}

// DenialCount returns the streak of consecutive non-approved outcomes
// at the tail of the window.
func (m *Memory) DenialCount() int {
	count := 0
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].Decision == model.DecisionApproved {
			break
		}
		count++
	}
	return count
}

// Summary is the operator-facing view of the memory state.
type Summary struct {
	TotalEntries int           `json:"total_entries"`
	Approved     int           `json:"approved"`
	Denied       int           `json:"denied"`
	DenialCount  int           `json:"denial_count"`
	Entries      []MemoryEntry `json:"entries"`
}

// Summarize reports counts over the retained window plus the lifetime
// total.
func (m *Memory) Summarize() Summary {
	s := Summary{
		TotalEntries: m.total,
		DenialCount:  m.DenialCount(),
		Entries:      append([]MemoryEntry(nil), m.entries...),
	}
	for _, e := range m.entries {
		if e.Decision == model.DecisionApproved {
			s.Approved++
		} else {
			s.Denied++
		}
	}
	return s
}

package storage

import (
	"context"
	"time"
)

// Storage persists the history of tool invocations
type Storage interface {
	// RecordInvocation stores inv and sets its ID
	RecordInvocation(ctx context.Context, inv *Invocation) error
	// ListInvocations returns the most recent invocations first
	ListInvocations(ctx context.Context, filter ListFilter) ([]*Invocation, error)
	// ToolStats aggregates invocations per tool, ordered by tool name
	ToolStats(ctx context.Context) ([]ToolStats, error)

	Close() error
}

// Invocation is one dispatched tool call
type Invocation struct {
	ID           int64
	Tool         string
	Arguments    string // JSON object, long values shortened
	Success      bool
	MatchCount   int // matches found before truncation, 0 when not applicable
	ErrorMessage string
	Duration     time.Duration
	CreatedAt    time.Time
}

// ListFilter narrows ListInvocations
type ListFilter struct {
	Tool        string // exact tool name, empty for all
	OnlyFailed  bool
	Limit       int // defaults to DefaultListLimit
	SinceMillis int64
}

// DefaultListLimit applies when ListFilter.Limit is not positive
const DefaultListLimit = 20

// ToolStats summarises invocations of one tool
type ToolStats struct {
	Tool          string
	Calls         int
	Failures      int
	TotalMatches  int
	AvgDuration   time.Duration
	LastInvokedAt time.Time
}

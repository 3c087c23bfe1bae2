package domain

import (
	"fmt"
	"time"
)

// StrategyKind identifies a pagination strategy
type StrategyKind string

const (
	// StrategyFull walks the table by ascending id
	StrategyFull StrategyKind = "full"
	// StrategyIncrementalIndexed seeks on the (modify_time, id) composite index
	StrategyIncrementalIndexed StrategyKind = "incremental_indexed"
	// StrategyIncrementalDiff scans by id and skips ids already in the index
	StrategyIncrementalDiff StrategyKind = "incremental_diff"
)

// Cursor is a resumable watermark describing how much of a source has been processed
type Cursor interface {
	fmt.Stringer
	cursor()
}

// IDCursor is an ascending id watermark. A nil LastID means no lower bound;
// any non-nil value, including zero or negative, is a literal bound.
type IDCursor struct {
	LastID *int64
}

func (IDCursor) cursor() {}

func (c IDCursor) String() string {
	if c.LastID == nil {
		return "id>-inf"
	}
	return fmt.Sprintf("id>%d", *c.LastID)
}

// NewIDCursor returns a cursor bounded at id.
func NewIDCursor(id int64) IDCursor {
	return IDCursor{LastID: &id}
}

// Advance moves the watermark to id. It reports false when id would not move
// the cursor forward.
func (c *IDCursor) Advance(id int64) bool {
	if c.LastID != nil && id <= *c.LastID {
		return false
	}
	c.LastID = &id
	return true
}

// Admits reports whether a row with the given id lies past the watermark.
func (c IDCursor) Admits(id int64) bool {
	return c.LastID == nil || id > *c.LastID
}

// TimeIDCursor is a composite (modify_time, id) watermark
type TimeIDCursor struct {
	LastModifyTime time.Time
	LastID         int64
}

func (TimeIDCursor) cursor() {}

func (c TimeIDCursor) String() string {
	return fmt.Sprintf("(modify_time,id)>(%s,%d)", c.LastModifyTime.Format(CanonicalTimeLayout), c.LastID)
}

// After implements the tie-break rule:
// modifyTime > last OR (modifyTime == last AND id > lastID).
func (c TimeIDCursor) After(modifyTime time.Time, id int64) bool {
	if modifyTime.After(c.LastModifyTime) {
		return true
	}
	return modifyTime.Equal(c.LastModifyTime) && id > c.LastID
}

// Advance moves the watermark forward. Positions at or before the current
// watermark are ignored, so the cursor never rewinds.
func (c *TimeIDCursor) Advance(modifyTime time.Time, id int64) bool {
	if !c.After(modifyTime, id) {
		return false
	}
	c.LastModifyTime = modifyTime
	c.LastID = id
	return true
}

// DiffState holds the complete set of row ids already present in the index
type DiffState struct {
	KnownIDs map[int64]struct{}
}

func (DiffState) cursor() {}

func (d DiffState) String() string {
	return fmt.Sprintf("known_ids=%d", len(d.KnownIDs))
}

// NewDiffState builds a DiffState from a list of ids.
func NewDiffState(ids []int64) DiffState {
	known := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}
	return DiffState{KnownIDs: known}
}

// Contains reports whether id is already indexed.
func (d DiffState) Contains(id int64) bool {
	_, ok := d.KnownIDs[id]
	return ok
}

package lipid

import (
	"fmt"
	"strings"
)

// Status is the scheduling state of a work item.
type Status int

const (
	StatusWaiting Status = iota
	StatusRunning
	// StatusDeferred holds MSn-first items whose first search found no
	// fragment evidence, until retention-time prediction decides their fate.
	StatusDeferred
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusRunning:
		return "running"
	case StatusDeferred:
		return "deferred"
	case StatusFinished:
		return "finished"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Order is the identification-order policy for a class/modification.
type Order int

const (
	// OrderMS1First accepts area-only hits immediately.
	OrderMS1First Order = iota
	// OrderMSnFirst requires fragment evidence in the first round and falls
	// back to a predicted-RT second attempt.
	OrderMSnFirst
	// OrderMSnOnly never reports hits without fragment evidence.
	OrderMSnOnly
)

func (o Order) String() string {
	switch o {
	case OrderMS1First:
		return "ms1_first"
	case OrderMSnFirst:
		return "msn_first"
	case OrderMSnOnly:
		return "msn_only"
	default:
		return fmt.Sprintf("order(%d)", int(o))
	}
}

// ParseOrder accepts the labels used in rule files.
func ParseOrder(value string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(value, "-", "_"))) {
	case "", "ms1_first", "ms1":
		return OrderMS1First, nil
	case "msn_first", "msn":
		return OrderMSnFirst, nil
	case "msn_only":
		return OrderMSnOnly, nil
	default:
		return OrderMS1First, fmt.Errorf("unknown identification order %q", value)
	}
}

// Item is one work item of a quantification run. Only Status changes while
// the scheduler runs; Window is narrowed once when a deferred item is
// re-opened around its predicted retention time.
type Item struct {
	Key            Key
	Index          int
	NeutralMass    float64
	Mz             float64
	Charge         int
	Window         Window
	Alternatives   []Key
	Positions      []PositionEvidence
	Carbon         int
	DoubleBonds    int
	HasComposition bool
	Status         Status
}

// Clone returns a deep copy of the item.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	out := *it
	out.Alternatives = append([]Key(nil), it.Alternatives...)
	out.Positions = make([]PositionEvidence, len(it.Positions))
	for i, p := range it.Positions {
		out.Positions[i] = p.Clone()
	}
	return &out
}

// Group returns the item key followed by its isobaric alternatives.
func (it *Item) Group() []Key {
	group := make([]Key, 0, len(it.Alternatives)+1)
	group = append(group, it.Key)
	group = append(group, it.Alternatives...)
	return group
}

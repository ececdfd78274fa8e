package pje

import "go.uber.org/zap"

// Partitions groups work items by region key. Positions maps each
// normalized process number to its 0-based position in the order items
// were first indexed, so progress messages can carry a stable row label
// even though regions complete out of order.
type Partitions struct {
	Groups    map[string][]WorkItem
	Positions map[string]int
}

// Total returns the number of items across all groups.
func (p Partitions) Total() int {
	n := 0
	for _, items := range p.Groups {
		n += len(items)
	}
	return n
}

// Partition iterates items once in input order, normalizing each process
// number and grouping by region. Items failing CNJ validation are dropped
// and logged; that is a filter, not an error surfaced to the caller.
func Partition(items []WorkItem, logger *zap.Logger) Partitions {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := Partitions{
		Groups:    make(map[string][]WorkItem),
		Positions: make(map[string]int),
	}
	for _, item := range items {
		region, normalized, err := ExtractRegion(item.ProcessNumber)
		if err != nil {
			logger.Warn("dropping work item with invalid process number",
				zap.String("process_number", item.ProcessNumber),
				zap.Error(err),
			)
			continue
		}
		item.ProcessNumber = normalized
		item.RegionKey = region
		if _, seen := p.Positions[normalized]; !seen {
			p.Positions[normalized] = len(p.Positions)
		}
		p.Groups[region] = append(p.Groups[region], item)
	}
	return p
}

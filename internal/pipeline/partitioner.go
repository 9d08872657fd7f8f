package pipeline

// Partition identifies one user-id partition of the event stream.
type Partition struct {
	Index int
	Count int
}

// Partitioner derives the lane layout of a run. Routing is a pure function
// of the user id and the partition count, so two events of the same user
// always land in the same lane and their relative order is preserved.
type Partitioner struct {
	PartitionCount int
}

// NewPartitioner creates a Partitioner. A count below 1 collapses to a
// single partition.
func NewPartitioner(partitionCount int) *Partitioner {
	if partitionCount < 1 {
		partitionCount = 1
	}
	return &Partitioner{PartitionCount: partitionCount}
}

// Route returns the partition index for a user id.
func (p *Partitioner) Route(userID int64) int {
	return Route(userID, p.PartitionCount)
}

// Plan returns the partitions of a run, one per lane, in index order.
func (p *Partitioner) Plan() []Partition {
	partitions := make([]Partition, p.PartitionCount)
	for i := range partitions {
		partitions[i] = Partition{Index: i, Count: p.PartitionCount}
	}
	return partitions
}

// Route maps a user id to a partition index in [0, partitionCount).
// The euclidean remainder keeps negative ids in range.
func Route(userID int64, partitionCount int) int {
	if partitionCount <= 1 {
		return 0
	}
	m := userID % int64(partitionCount)
	if m < 0 {
		m += int64(partitionCount)
	}
	return int(m)
}

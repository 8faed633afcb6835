package inter

// ResourceUsage is the metered resource consumption of a single
// infrastructure action. All fields are integers so that economic math over
// sums of usage is bit-for-bit reproducible across nodes: fractional
// categories (storage, egress) are stored in milli-units (thousandths of a
// GB·day / MB).
type ResourceUsage struct {
	// CPUMillis is CPU time in milliseconds.
	CPUMillis uint64
	// MemMBSec is memory usage integrated over time, in MB·s.
	MemMBSec uint64
	// StorageGBDayMilli is storage usage in thousandths of a GB·day.
	StorageGBDayMilli uint64
	// EgressMBMilli is network egress in thousandths of a MB.
	EgressMBMilli uint64
}

// Add accumulates another usage record into u.
func (u *ResourceUsage) Add(other ResourceUsage) {
	u.CPUMillis += other.CPUMillis
	u.MemMBSec += other.MemMBSec
	u.StorageGBDayMilli += other.StorageGBDayMilli
	u.EgressMBMilli += other.EgressMBMilli
}

// IsZero reports whether no resource category was consumed.
func (u ResourceUsage) IsZero() bool {
	return u.CPUMillis == 0 && u.MemMBSec == 0 &&
		u.StorageGBDayMilli == 0 && u.EgressMBMilli == 0
}

// UsageSum is resource usage aggregated over a set of receipts. The receipt
// count is itself an economically weighted category, so bundles made of many
// small actions still carry weight.
type UsageSum struct {
	ResourceUsage
	// Receipts is the number of receipts aggregated into this sum.
	Receipts uint64
}

// AddReceipt accumulates one receipt's usage into the sum and bumps the
// receipt count.
func (s *UsageSum) AddReceipt(u ResourceUsage) {
	s.ResourceUsage.Add(u)
	s.Receipts++
}

// Merge accumulates another sum into s.
func (s *UsageSum) Merge(other UsageSum) {
	s.ResourceUsage.Add(other.ResourceUsage)
	s.Receipts += other.Receipts
}

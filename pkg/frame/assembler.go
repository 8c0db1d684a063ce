package frame

import "time"

// SampleRecord is one decoded, indexed and timestamped sample.
type SampleRecord struct {
	Index   uint64
	Elapsed time.Duration
	Time    time.Time
	Fields  Fields
}

// ElapsedSeconds returns the time since acquisition start in seconds.
func (r SampleRecord) ElapsedSeconds() float64 {
	return r.Elapsed.Seconds()
}

// Assembler turns decoded fields into an ordered sequence of SampleRecords.
type Assembler struct {
	start time.Time
	next  uint64
	now   func() time.Time
}

// NewAssembler creates an Assembler whose time base starts now.
func NewAssembler() *Assembler {
	a := &Assembler{now: time.Now}
	a.Reset(a.now())
	return a
}

// Reset restarts the index at zero and the elapsed clock at start.
func (a *Assembler) Reset(start time.Time) {
	a.start, a.next = start, 0
}

// Start returns the acquisition start time.
func (a *Assembler) Start() time.Time {
	return a.start
}

// Count returns the number of records assembled since the last Reset.
func (a *Assembler) Count() uint64 {
	return a.next
}

// Assemble assigns the next index and elapsed time to fields.
func (a *Assembler) Assemble(fields Fields) SampleRecord {
	now := a.now()
	elapsed := now.Sub(a.start)
	if elapsed < 0 {
		elapsed = 0
	}
	rec := SampleRecord{
		Index:   a.next,
		Elapsed: elapsed,
		Time:    now,
		Fields:  fields,
	}
	a.next++
	return rec
}

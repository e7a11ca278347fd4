package diagnostics

// Sink persists diagnostic records outside the process, the way the
// teacher's database.DatabaseModule persists security-scan results. A
// Log with no Sink functions identically; this is an observability
// add-on, never a requirement for compiling or running a program.
type Sink interface {
	Record(Record) error
	Close() error
}

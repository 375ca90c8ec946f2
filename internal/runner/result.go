package runner

import "time"

// Command describes a single child process to run.
type Command struct {
	Argv  []string // binary followed by its arguments
	Dir   string   // working directory; empty means the current directory
	Stdin []byte   // written to the child's stdin, which is then closed
}

// Result holds the output of a command execution.
type Result struct {
	RunID       string        // unique identifier for this run
	ExitCode    int           // process exit code
	Stdout      []byte        // captured stdout (may be truncated)
	Stderr      []byte        // captured stderr (may be truncated)
	Truncated   bool          // true if output exceeded the size cap
	StdinUnread bool          // child closed stdin before all input was written
	Duration    time.Duration // wall time from start to exit
}

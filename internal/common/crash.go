package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// CrashDir is where crash reports are written; "" disables the file
var CrashDir = "./logs"

// crashReport is the content of one crash file
type crashReport struct {
	At         time.Time
	Panic      interface{}
	Args       []string
	Stack      string
	Goroutines string
}

func (r crashReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== PHARMYRUS CRASH REPORT ===\n")
	fmt.Fprintf(&b, "Time: %s\n", r.At.Format(time.RFC3339))
	fmt.Fprintf(&b, "Version: %s\n", GetFullVersion())
	fmt.Fprintf(&b, "Command: %s\n", strings.Join(r.Args, " "))
	fmt.Fprintf(&b, "Go: %s %s/%s, %d goroutines\n\n", runtime.Version(), runtime.GOOS, runtime.GOARCH, runtime.NumGoroutine())
	fmt.Fprintf(&b, "=== PANIC ===\n%v\n\n", r.Panic)
	fmt.Fprintf(&b, "=== STACK ===\n%s\n\n", r.Stack)
	fmt.Fprintf(&b, "=== ALL GOROUTINES ===\n%s\n", r.Goroutines)
	return b.String()
}

// WriteCrashFile saves a crash report for panicVal and returns its path, or
// "" when the report could only be written to stderr.
func WriteCrashFile(panicVal interface{}, stack string) string {
	report := crashReport{
		At:         time.Now(),
		Panic:      panicVal,
		Args:       os.Args,
		Stack:      stack,
		Goroutines: allGoroutineStacks(),
	}
	content := report.String()

	if CrashDir == "" {
		fmt.Fprint(os.Stderr, content)
		return ""
	}

	path := filepath.Join(CrashDir, fmt.Sprintf("crash-%s.log", report.At.Format("2006-01-02T15-04-05")))
	if err := os.MkdirAll(CrashDir, 0755); err == nil {
		err = os.WriteFile(path, []byte(content), 0644)
		if err == nil {
			fmt.Fprintf(os.Stderr, "\n!!! FATAL CRASH - report saved to %s !!!\nPanic: %v\n", path, panicVal)
			return path
		}
		fmt.Fprintf(os.Stderr, "CRASH: failed to write crash file: %v\n", err)
	}
	fmt.Fprint(os.Stderr, content)
	return ""
}

// RecoverWithCrashFile is deferred at the top of main. A panic that reaches
// it is written to a crash file and the process exits with status 2.
func RecoverWithCrashFile() {
	if r := recover(); r != nil {
		buf := make([]byte, 8192)
		n := runtime.Stack(buf, false)
		WriteCrashFile(r, string(buf[:n]))
		os.Exit(2)
	}
}

// allGoroutineStacks grows its buffer until every stack fits, up to 64MB
func allGoroutineStacks() string {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) || len(buf) >= 64*1024*1024 {
			return string(buf[:n])
		}
		buf = make([]byte, len(buf)*2)
	}
}

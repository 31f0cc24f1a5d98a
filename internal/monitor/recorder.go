package monitor

import (
	"fmt"
	"io"
	"os"
	"time"

	"chatcoach/internal/collab"
)

// Recorder is the default collab.TelemetrySink adapter: it writes one
// human-readable line per trace event to an io.Writer (typically stdout),
// the way the teacher's CLIMonitor renders channel traffic.
type Recorder struct {
	w io.Writer
}

// NewRecorder creates a Recorder writing to stdout.
func NewRecorder() *Recorder {
	return &Recorder{w: os.Stdout}
}

// NewRecorderTo creates a Recorder writing to an arbitrary writer, mainly
// for tests.
func NewRecorderTo(w io.Writer) *Recorder {
	return &Recorder{w: w}
}

var _ collab.TelemetrySink = (*Recorder)(nil)

// Record implements collab.TelemetrySink.
func (r *Recorder) Record(ev collab.TraceEvent) {
	ts := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(r.w, "\033[90m[%s]\033[0m [%s] req=%s", ts, ev.Kind, ev.RequestID)
	for k, v := range ev.Fields {
		fmt.Fprintf(r.w, " %s=%v", k, v)
	}
	fmt.Fprintln(r.w)
}

// Startup initializes the global logger and prints a start banner. Mirrors
// the teacher's SetupEnvironment pairing of logger-init and banner.
func Startup(logLevel string) {
	SetupSlog(logLevel)
	printBanner()
}

func printBanner() {
	const banner = `
 _____ _           _    _____                 _
|  __ (_)         | |  / ____|               | |
| |  | | ___ _ __ | |_| |     ___   __ _  ___| |__
| |  | |/ _ \ '_ \| __| |    / _ \ / _  |/ __| '_ \
| |__| |  __/ | | | |_| |___| (_) | (_| | (__| | | |
|_____/_|\___|_| |_|\__|\_____\___/ \__,_|\___|_| |_|
`
	fmt.Print(banner)
}

package topology

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/zoobzio/capitan"
)

// installSignalHandler wires the POSIX control surface spec.md §4.7
// enumerates: the first SIGINT logs a status report, the second requests
// a pause, the third exits the process hard; SIGUSR1 dumps the status
// report; SIGUSR2 captures a full goroutine backtrace to the log;
// SIGTSTP logs a report without pausing.
func (s *Supervisor) installSignalHandler() chan os.Signal {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGTSTP)
	return ch
}

func (s *Supervisor) removeSignalHandler(ch chan os.Signal) {
	signal.Stop(ch)
}

func (s *Supervisor) handleSignal(ctx context.Context, sig os.Signal) {
	capitan.Info(ctx, SignalSupervisorSignal, FieldSignalName.Field(sig.String()))

	switch sig {
	case syscall.SIGINT:
		s.sigintCount++
		switch s.sigintCount {
		case 1:
			capitan.Info(ctx, SignalSupervisorStatusReport, FieldSignalName.Field("SIGINT/1"))
		case 2:
			s.engine.RequestPause()
		default:
			os.Exit(130)
		}
	case syscall.SIGUSR1:
		if s.status != nil {
			_ = s.status.WriteReport(s.engine.Report().String())
		}
	case syscall.SIGUSR2:
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		capitan.Warn(ctx, SignalSupervisorSignal, FieldError.Field(string(buf[:n])))
	case syscall.SIGTSTP:
		capitan.Info(ctx, SignalSupervisorStatusReport, FieldEventsTotal.Field(int(s.engine.EventsRetired())))
	}
}

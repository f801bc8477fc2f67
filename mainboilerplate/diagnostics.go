// Package mainboilerplate holds the program wiring shared by shardapply
// commands: flag and INI parsing, logging, the diagnostics server, and
// database connections.
package mainboilerplate

import (
	"fmt"
	"net/http"
	_ "net/http/pprof" // Registers /debug/pprof/ on the default ServeMux.
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// DiagnosticsConfig configures the diagnostics server.
type DiagnosticsConfig struct {
	Port           string `long:"port" env:"PORT" default:"8080" description:"Port serving /debug/metrics, /debug/ready, /debug/status and /debug/pprof. Empty disables"`
	TerminationLog string `long:"termination-log" env:"TERMINATION_LOG" default:"/dev/termination-log" description:"File to which a fatal error is written before exiting. Empty disables"`
}

// InitDiagnosticsAndRecover registers diagnostic handlers on the default
// ServeMux and, if a Port is configured, begins serving it. The returned
// func is to be deferred by main: it writes a recovered panic to the
// TerminationLog before re-raising it.
func InitDiagnosticsAndRecover(cfg DiagnosticsConfig) func() {
	registerDiagnostics(http.DefaultServeMux)

	if cfg.Port != "" {
		go func() {
			var err = http.ListenAndServe(":"+cfg.Port, nil)
			log.WithFields(log.Fields{"port": cfg.Port, "err": err}).Error("diagnostics server stopped")
		}()
	}

	return func() {
		if r := recover(); r != nil {
			writeTerminationMessage(cfg.TerminationLog, r)
			panic(r)
		}
	}
}

func registerDiagnostics(mux *http.ServeMux) {
	mux.HandleFunc("/debug/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "shardapply %s ready\n", Version)
	})
	mux.Handle("/debug/metrics", promhttp.Handler())
}

// writeTerminationMessage is best-effort: |path| exists only where the
// orchestrator provides it.
func writeTerminationMessage(path string, r interface{}) {
	if path == "" {
		return
	}
	var f, err = os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return
	}
	fmt.Fprintf(f, "%+v", r)
	_ = f.Close()
}

// Must logs |msg| with |err| and |extra| key/value fields, and panics,
// if |err| is non-nil.
func Must(err error, msg string, extra ...interface{}) {
	if err == nil {
		return
	}
	var fields = log.Fields{"err": err}
	for i := 0; i+1 < len(extra); i += 2 {
		fields[fmt.Sprint(extra[i])] = extra[i+1]
	}
	log.WithFields(fields).Panic(msg)
}

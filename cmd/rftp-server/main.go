// Command rftp-server runs the reliable file-transfer server: it binds
// a UDP socket and hands every received datagram to the single-threaded
// request handler.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"rftp/internal/applog"
	"rftp/internal/config"
	"rftp/internal/handler"
	"rftp/internal/transport"
)

func main() {
	host := flag.String("H", "0.0.0.0", "address to bind")
	port := flag.Int("p", 9090, "UDP port to bind")
	storage := flag.String("s", "./storage", "directory served for upload/download")
	protoFlag := flag.String("r", "0", "error recovery protocol (0=stop-and-wait, 1=selective-repeat)")
	logDir := flag.String("log-dir", "", "if set, write a date-stamped log file here instead of stdout")
	metricsInterval := flag.Duration("metrics-interval", 30*time.Second, "how often to log a server metrics snapshot (0 disables)")
	verbose := flag.Bool("v", false, "increase output verbosity")
	quiet := flag.Bool("q", false, "decrease output verbosity")
	flag.Parse()

	if *verbose && *quiet {
		fmt.Fprintln(os.Stderr, "rftp-server: -v and -q are mutually exclusive")
		os.Exit(2)
	}

	proto, err := config.ParseProtocol(*protoFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rftp-server:", err)
		os.Exit(2)
	}
	if err := config.ValidateHost(*host); err != nil && *host != "0.0.0.0" {
		fmt.Fprintln(os.Stderr, "rftp-server:", err)
		os.Exit(2)
	}

	log := applog.Server
	switch {
	case *verbose:
		logrus.SetLevel(logrus.DebugLevel)
	case *quiet:
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	if *logDir != "" {
		fileLog, f, err := applog.NewFileLogger("server", *logDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "rftp-server: opening log file:", err)
			os.Exit(1)
		}
		defer f.Close()
		log = fileLog
	}

	if err := os.MkdirAll(*storage, 0o755); err != nil {
		log.WithError(err).Fatal("cannot prepare storage directory")
	}

	sock, err := transport.ListenUDP(*host, *port)
	if err != nil {
		log.WithError(err).Fatal("cannot bind")
	}
	defer sock.Close()

	h := handler.New(sock, *storage, proto, log)
	log.WithFields(logrus.Fields{
		"addr": sock.LocalAddr(), "protocol": proto, "storage": *storage,
	}).Info("rftp-server listening")

	if *metricsInterval > 0 {
		go logMetricsPeriodically(h, log, *metricsInterval)
	}

	buf := make([]byte, config.BUFSIZE)
	for {
		n, addr, err := sock.RecvFrom(buf)
		if err != nil {
			log.WithError(err).Warn("recv error")
			continue
		}
		datagram := append([]byte(nil), buf[:n]...)
		h.HandleRequest(datagram, addr)
	}
}

// logMetricsPeriodically emits a snapshot of the handler's running
// counters on a fixed interval, for long-running processes where the
// per-packet Info logging is too sparse to see aggregate throughput.
func logMetricsPeriodically(h *handler.Handler, log *logrus.Entry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		snap := h.Metrics().GetSnapshot()
		log.WithFields(logrus.Fields{
			"active_connections": snap.ActiveConnections,
			"total_connections":  snap.TotalConnections,
			"bytes_sent":         snap.TotalBytesSent,
			"segments_sent":      snap.TotalSegmentsSent,
			"errors":             snap.TotalErrors,
			"retransmissions":    snap.TotalRetransmissions,
			"nacks":              snap.TotalNacksReceived,
			"uptime":             snap.Uptime,
		}).Info("metrics snapshot")
	}
}

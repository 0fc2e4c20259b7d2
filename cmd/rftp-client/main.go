// Command rftp-client uploads or downloads a single file against an
// rftp-server instance, under a chosen error-recovery protocol. Its
// flag set follows the reference implementation's download client
// (-H/-p/-d/-n/-r, mutually-exclusive -v/-q), extended with -o to pick
// the transfer direction since this binary covers both.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"rftp/internal/applog"
	"rftp/internal/config"
	"rftp/internal/rclient"
	"rftp/internal/transport"
)

func main() {
	host := flag.String("H", "127.0.0.1", "server IP address")
	port := flag.Int("p", 9090, "server port")
	dst := flag.String("d", ".", "destination directory (download) or source directory (upload)")
	name := flag.String("n", "hello.txt", "file name")
	protoFlag := flag.String("r", "0", "error recovery protocol (0=stop-and-wait, 1=selective-repeat)")
	op := flag.String("o", "download", "operation: upload or download")
	timeoutFlag := flag.String("timeout", "2s", "per-round read timeout (e.g. 2s, 500ms)")
	logDir := flag.String("log-dir", "", "if set, write a date-stamped log file here instead of stdout")
	verbose := flag.Bool("v", false, "increase output verbosity")
	quiet := flag.Bool("q", false, "decrease output verbosity")
	flag.Parse()

	if *verbose && *quiet {
		fmt.Fprintln(os.Stderr, "rftp-client: -v and -q are mutually exclusive")
		os.Exit(2)
	}

	proto, err := config.ParseProtocol(*protoFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rftp-client:", err)
		os.Exit(2)
	}
	if err := config.ValidatePort(fmt.Sprint(*port)); err != nil {
		fmt.Fprintln(os.Stderr, "rftp-client:", err)
		os.Exit(2)
	}
	if err := config.ValidateFilePath(*dst); err != nil {
		fmt.Fprintln(os.Stderr, "rftp-client:", err)
		os.Exit(2)
	}
	if err := config.ValidateTimeout(*timeoutFlag); err != nil {
		fmt.Fprintln(os.Stderr, "rftp-client:", err)
		os.Exit(2)
	}
	timeout, err := time.ParseDuration(*timeoutFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rftp-client:", err)
		os.Exit(2)
	}

	switch {
	case *verbose:
		logrus.SetLevel(logrus.DebugLevel)
	case *quiet:
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
	log := applog.Client
	if *logDir != "" {
		fileLog, f, err := applog.NewFileLogger("client", *logDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "rftp-client: opening log file:", err)
			os.Exit(1)
		}
		defer f.Close()
		log = fileLog
	}

	sock, err := transport.DialUDP(*host, *port)
	if err != nil {
		log.WithError(err).Fatal("cannot dial server")
	}
	defer sock.Close()

	c := rclient.New(sock, proto, timeout, log)

	switch *op {
	case "upload":
		local := filepath.Join(*dst, *name)
		if err := c.Upload(local, *name); err != nil {
			log.WithError(err).Fatal("upload failed")
		}
		log.WithField("file", *name).Info("upload complete")
	case "download":
		local := filepath.Join(*dst, *name)
		if err := c.Download(*name, local); err != nil {
			log.WithError(err).Fatal("download failed")
		}
		log.WithField("file", local).Info("download complete")
	default:
		fmt.Fprintf(os.Stderr, "rftp-client: unknown operation %q (want upload or download)\n", *op)
		os.Exit(2)
	}
}

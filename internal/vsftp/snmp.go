package vsftp

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/xtaci/rudp"
)

// SnmpLogger periodically appends a row of sock's transport counters to
// a CSV file, the way std.SnmpLogger drove kcp.DefaultSnmp in the
// teacher, adapted to this engine's per-socket Metrics instead of a
// single process-wide counter struct. Shared by both the client and
// server binaries so the logging loop exists in one place.
func SnmpLogger(sock *rudp.Socket, path string, interval int) {
	if path == "" || interval == 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		logdir, logfile := filepath.Split(path)
		f, err := os.OpenFile(logdir+time.Now().Format(logfile), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Println(err)
			return
		}
		w := csv.NewWriter(f)
		m := sock.Metrics()
		if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
			if err := w.Write(append([]string{"Unix"}, m.Header()...)); err != nil {
				log.Println(err)
			}
		}
		if err := w.Write(append([]string{fmt.Sprint(time.Now().Unix())}, m.Row()...)); err != nil {
			log.Println(err)
		}
		w.Flush()
		f.Close()
	}
}

// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"
	"github.com/xtaci/rudp"
	"github.com/xtaci/rudp/internal/vsftp"
	"github.com/xtaci/rudp/reactor"
)

// VERSION is injected by buildflags.
var VERSION = "SELFBUILD"

// activeSocket is set once the client's socket is open, so the SIGUSR1
// handler in signal.go (linux/darwin/freebsd only) has something to
// dump. There is at most one per process.
var activeSocket *rudp.Socket

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "vsftp-client"
	myApp.Usage = "file transfer client over RUDP"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "remoteaddr, r",
			Value: "127.0.0.1:29900",
			Usage: "vsftp server address",
		},
		cli.StringFlag{
			Name:   "key",
			Value:  "it's a secrect",
			Usage:  "pre-shared secret between client and server",
			EnvVar: "VSFTP_KEY",
		},
		cli.BoolFlag{
			Name:  "nocomp",
			Usage: "disable snappy compression",
		},
		cli.BoolFlag{
			Name:  "nocrypt",
			Usage: "disable AES-GCM encryption",
		},
		cli.StringFlag{
			Name:  "put",
			Usage: "path of a local file to upload",
		},
		cli.StringFlag{
			Name:  "get",
			Usage: "name of a remote file to download",
		},
		cli.StringFlag{
			Name:  "as",
			Usage: "remote file name to use for --put (defaults to the local base name)",
		},
		cli.StringFlag{
			Name:  "outdir",
			Value: ".",
			Usage: "directory to write a --get download into",
		},
		cli.StringFlag{
			Name:  "snmplog",
			Value: "",
			Usage: "collect transport counters to file, aware of timeformat in golang, like: ./snmp-20060102.log",
		},
		cli.IntFlag{
			Name:  "snmpperiod",
			Value: 60,
			Usage: "counter collection period, in seconds",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "specify a log file to output, default goes to stderr",
		},
		cli.BoolFlag{
			Name:  "quiet",
			Usage: "suppress per-transfer progress messages",
		},
		cli.StringFlag{
			Name:  "c",
			Value: "",
			Usage: "config from json file, which will override the command from shell",
		},
	}
	myApp.Action = run
	if err := myApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	config := Config{
		RemoteAddr: c.String("remoteaddr"),
		Key:        c.String("key"),
		NoComp:     c.Bool("nocomp"),
		NoCrypt:    c.Bool("nocrypt"),
		Put:        c.String("put"),
		Get:        c.String("get"),
		As:         c.String("as"),
		OutDir:     c.String("outdir"),
		Log:        c.String("log"),
		SnmpLog:    c.String("snmplog"),
		SnmpPeriod: c.Int("snmpperiod"),
		Quiet:      c.Bool("quiet"),
	}
	if c.String("c") != "" {
		checkError(parseJSONConfig(&config, c.String("c")))
	}

	if config.Log != "" {
		f, err := os.OpenFile(config.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		checkError(err)
		defer f.Close()
		log.SetOutput(f)
	}

	if config.Put == "" && config.Get == "" {
		color.Red("nothing to do: pass --put <file> or --get <name>")
		os.Exit(1)
	}

	log.Println("version:", VERSION)
	log.Println("remote address:", config.RemoteAddr)
	log.Println("compression:", !config.NoComp)
	log.Println("encryption:", !config.NoCrypt)
	log.Println("snmplog:", config.SnmpLog)

	remoteAddr, err := net.ResolveUDPAddr("udp4", config.RemoteAddr)
	checkError(err)

	loop := reactor.NewLoop()
	go func() {
		if err := loop.Run(); err != nil {
			log.Printf("reactor stopped: %+v", err)
		}
	}()
	defer loop.Stop()

	engine := rudp.New(loop)
	sock, err := engine.Open(0)
	checkError(err)
	activeSocket = sock

	if config.SnmpLog != "" {
		go vsftp.SnmpLogger(sock, config.SnmpLog, config.SnmpPeriod)
	}

	key := vsftp.DeriveKey([]byte(config.Key))

	switch {
	case config.Put != "":
		return doPut(sock, remoteAddr, config, key)
	default:
		return doGet(sock, remoteAddr, config, key)
	}
}

func doPut(sock *rudp.Socket, remote *net.UDPAddr, config Config, key []byte) error {
	raw, err := os.ReadFile(config.Put)
	checkError(err)

	name := config.As
	if name == "" {
		name = filepath.Base(config.Put)
	}

	body := raw
	if !config.NoComp {
		body = vsftp.Compress(body)
	}
	if !config.NoCrypt {
		body, err = vsftp.Seal(key, body)
		checkError(err)
	}

	done := make(chan vsftp.Control, 1)
	recv := vsftp.NewReceiver(func(peer *net.UDPAddr, ctrl vsftp.Control, respBody []byte) {
		done <- ctrl
	})
	sock.SetDataHandler(recv.HandleData)

	if !config.Quiet {
		log.Printf("uploading %s (%d bytes) as %q", config.Put, len(body), name)
	}
	ctrl := vsftp.Control{Op: vsftp.OpPut, Name: name, Size: uint64(len(body))}
	if err := vsftp.SendFile(sock, remote, ctrl, body); err != nil {
		return err
	}

	select {
	case resp := <-done:
		if resp.Op != vsftp.OpOk {
			color.Red("server rejected the upload: %s", resp.Name)
			os.Exit(1)
		}
		if !config.Quiet {
			log.Println("upload acknowledged")
		}
	case <-time.After(30 * time.Second):
		color.Red("timed out waiting for the server's acknowledgement")
		os.Exit(1)
	}
	return nil
}

func doGet(sock *rudp.Socket, remote *net.UDPAddr, config Config, key []byte) error {
	done := make(chan struct{})
	var failed bool
	var reason string
	var out []byte

	recv := vsftp.NewReceiver(func(peer *net.UDPAddr, ctrl vsftp.Control, body []byte) {
		if ctrl.Op == vsftp.OpErr {
			failed, reason = true, ctrl.Name
			close(done)
			return
		}
		out = body
		close(done)
	})
	sock.SetDataHandler(recv.HandleData)

	if !config.Quiet {
		log.Printf("requesting %q from %v", config.Get, remote)
	}
	req := vsftp.Control{Op: vsftp.OpGet, Name: config.Get}
	if err := vsftp.SendFile(sock, remote, req, nil); err != nil {
		return err
	}

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		color.Red("timed out waiting for the file")
		os.Exit(1)
	}
	if failed {
		color.Red("server could not serve the file: %s", reason)
		os.Exit(1)
	}

	body := out
	var err error
	if !config.NoCrypt {
		body, err = vsftp.Open(key, body)
		checkError(err)
	}
	if !config.NoComp {
		body, err = vsftp.Decompress(body)
		checkError(err)
	}

	destPath := filepath.Join(config.OutDir, filepath.Base(config.Get))
	checkError(os.WriteFile(destPath, body, 0644))
	if !config.Quiet {
		log.Printf("saved %s (%d bytes)", destPath, len(body))
	}
	return nil
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(-1)
	}
}

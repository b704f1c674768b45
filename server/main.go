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

	"github.com/urfave/cli"
	"github.com/xtaci/rudp"
	"github.com/xtaci/rudp/internal/vsftp"
	"github.com/xtaci/rudp/reactor"
)

// VERSION is injected by buildflags.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "vsftp-server"
	myApp.Usage = "file transfer server over RUDP"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen, l",
			Value: ":29900",
			Usage: "udp listen address",
		},
		cli.StringFlag{
			Name:  "root",
			Value: ".",
			Usage: "directory served for GET and written to for PUT",
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
			Name:  "log",
			Value: "",
			Usage: "specify a log file to output, default goes to stderr",
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
		cli.BoolFlag{
			Name:  "quiet",
			Usage: "suppress per-transfer log messages",
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
		Listen:     c.String("listen"),
		Root:       c.String("root"),
		Key:        c.String("key"),
		NoComp:     c.Bool("nocomp"),
		NoCrypt:    c.Bool("nocrypt"),
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

	log.Println("version:", VERSION)
	log.Println("listening on:", config.Listen)
	log.Println("root:", config.Root)
	log.Println("compression:", !config.NoComp)
	log.Println("encryption:", !config.NoCrypt)

	laddr, err := net.ResolveUDPAddr("udp4", config.Listen)
	checkError(err)

	loop := reactor.NewLoop()
	go func() {
		if err := loop.Run(); err != nil {
			log.Printf("reactor stopped: %+v", err)
		}
	}()
	defer loop.Stop()

	engine := rudp.New(loop)
	sock, err := engine.Open(laddr.Port)
	checkError(err)

	key := vsftp.DeriveKey([]byte(config.Key))
	srv := &server{sock: sock, config: config, key: key}
	recv := vsftp.NewReceiver(srv.handleTransfer)
	sock.SetDataHandler(recv.HandleData)

	if config.SnmpLog != "" {
		go vsftp.SnmpLogger(sock, config.SnmpLog, config.SnmpPeriod)
	}

	log.Println("ready")
	select {}
}

type server struct {
	sock   *rudp.Socket
	config Config
	key    []byte
}

// handleTransfer is vsftp.CompleteFunc: it runs once per finished
// inbound control frame (a GET request with no body completes as soon
// as its control frame arrives; a PUT completes once its body is fully
// reassembled).
func (s *server) handleTransfer(peer *net.UDPAddr, ctrl vsftp.Control, body []byte) {
	switch ctrl.Op {
	case vsftp.OpPut:
		s.handlePut(peer, ctrl, body)
	case vsftp.OpGet:
		s.handleGet(peer, ctrl)
	default:
		log.Printf("unexpected control op %v from %v", ctrl.Op, peer)
	}
}

func (s *server) handlePut(peer *net.UDPAddr, ctrl vsftp.Control, body []byte) {
	name := filepath.Base(ctrl.Name)
	if !s.config.Quiet {
		log.Printf("receiving %q (%d bytes) from %v", name, len(body), peer)
	}

	plain, err := s.decode(body)
	if err != nil {
		s.reject(peer, "decode failed")
		return
	}
	if err := os.WriteFile(filepath.Join(s.config.Root, name), plain, 0644); err != nil {
		s.reject(peer, "write failed")
		return
	}
	s.ack(peer)
}

func (s *server) handleGet(peer *net.UDPAddr, ctrl vsftp.Control) {
	name := filepath.Base(ctrl.Name)
	if !s.config.Quiet {
		log.Printf("serving %q to %v", name, peer)
	}

	plain, err := os.ReadFile(filepath.Join(s.config.Root, name))
	if err != nil {
		s.reject(peer, "not found")
		return
	}
	body, err := s.encode(plain)
	if err != nil {
		s.reject(peer, "encode failed")
		return
	}
	resp := vsftp.Control{Op: vsftp.OpOk, Name: name, Size: uint64(len(body))}
	if err := vsftp.SendFile(s.sock, peer, resp, body); err != nil {
		log.Printf("send to %v failed: %+v", peer, err)
	}
}

func (s *server) ack(peer *net.UDPAddr) {
	resp := vsftp.Control{Op: vsftp.OpOk}
	if err := vsftp.SendFile(s.sock, peer, resp, nil); err != nil {
		log.Printf("send to %v failed: %+v", peer, err)
	}
}

func (s *server) reject(peer *net.UDPAddr, reason string) {
	resp := vsftp.Control{Op: vsftp.OpErr, Name: reason}
	if err := vsftp.SendFile(s.sock, peer, resp, nil); err != nil {
		log.Printf("send to %v failed: %+v", peer, err)
	}
}

// decode reverses whatever encode applied: AES-GCM open, then snappy decompress.
func (s *server) decode(body []byte) ([]byte, error) {
	var err error
	if !s.config.NoCrypt {
		body, err = vsftp.Open(s.key, body)
		if err != nil {
			return nil, err
		}
	}
	if !s.config.NoComp {
		body, err = vsftp.Decompress(body)
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}

// encode mirrors the client: compress, then encrypt.
func (s *server) encode(body []byte) ([]byte, error) {
	if !s.config.NoComp {
		body = vsftp.Compress(body)
	}
	if !s.config.NoCrypt {
		var err error
		body, err = vsftp.Seal(s.key, body)
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(-1)
	}
}

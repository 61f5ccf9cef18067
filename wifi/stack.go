//go:build tinygo

// Package wifi brings up the Pico W's CYW43439 radio, runs DHCP on the
// lneto stack and dials TCP connections for the MQTT console.
//
// The network name and password are set at build time:
//
//	tinygo flash -target=pico-w -ldflags="-X 'github.com/harveysanders/lcdecho/wifi.ssid=home' -X 'github.com/harveysanders/lcdecho/wifi.pass=secret'" ./echomqtt
package wifi

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"runtime"
	"time"

	"github.com/soypat/cyw43439"
	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
)

const (
	mtu      = cyw43439.MTU
	pollTime = 5 * time.Millisecond
)

var (
	ssid string
	pass string
)

// SSID returns the network name set via linker flags.
func SSID() string { return ssid }

type Config struct {
	// Hostname sent with DHCP requests.
	Hostname string
	// RequestedAddr is offered to DHCP and used as a static address if
	// DHCP does not complete. Optional.
	RequestedAddr netip.Addr
	Logger        *slog.Logger
}

// Stack couples the radio with the lneto stack.
type Stack struct {
	s       xnet.StackAsync
	dev     *cyw43439.Device
	log     *slog.Logger
	sendbuf []byte
}

// Join initializes the radio and joins the network given at build time,
// retrying the join until it succeeds.
func Join(cfg Config) (*Stack, error) {
	if cfg.Hostname == "" {
		return nil, errors.New("wifi: empty hostname")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.Level(127),
		}))
	}

	start := time.Now()
	dev := cyw43439.NewPicoWDevice()
	if err := dev.Init(cyw43439.DefaultWifiConfig()); err != nil {
		return nil, errors.New("wifi: init: " + err.Error())
	}
	logger.Info("wifi:init", slog.Duration("took", time.Since(start)))

	logger.Info("wifi:joining", slog.String("ssid", ssid), slog.Int("passlen", len(pass)))
	for {
		err := dev.JoinWPA2(ssid, pass)
		if err == nil {
			break
		}
		logger.Error("wifi:join-failed", slog.String("err", err.Error()))
		time.Sleep(5 * time.Second)
	}

	mac, err := dev.HardwareAddr6()
	if err != nil {
		return nil, errors.New("wifi: hardware address: " + err.Error())
	}
	logger.Info("wifi:joined", slog.String("mac", net.HardwareAddr(mac[:]).String()))

	stack := &Stack{
		dev:     dev,
		log:     logger,
		sendbuf: make([]byte, mtu),
	}
	err = stack.s.Reset(xnet.StackConfig{
		Hostname:        cfg.Hostname,
		MaxTCPConns:     1,
		RandSeed:        time.Since(start).Nanoseconds(),
		HardwareAddress: mac,
		MTU:             mtu,
	})
	if err != nil {
		return nil, errors.New("wifi: stack reset: " + err.Error())
	}
	dev.RecvEthHandle(func(pkt []byte) error {
		return stack.s.Demux(pkt, 0)
	})

	// Packets only move while Loop runs, so start it before DHCP.
	go stack.Loop()

	if err := stack.dhcp(cfg.RequestedAddr); err != nil {
		return nil, err
	}
	return stack, nil
}

func (s *Stack) dhcp(requested netip.Addr) error {
	if !requested.IsValid() {
		requested = netip.AddrFrom4([4]byte{})
	} else if !requested.Is4() {
		return errors.New("wifi: only dhcpv4 supported")
	}
	rstack := s.s.StackRetrying(50 * time.Millisecond)

	s.log.Info("dhcp:starting")
	results, err := rstack.DoDHCPv4(requested.As4(), 3*time.Second, 3)
	if err != nil {
		if !requested.IsUnspecified() {
			s.log.Warn("dhcp:static-fallback", slog.String("ip", requested.String()))
			s.s.SetIPAddr(requested)
			return nil
		}
		return errors.New("wifi: dhcp: " + err.Error())
	}
	if err := s.s.AssimilateDHCPResults(results); err != nil {
		return errors.New("wifi: assimilate dhcp: " + err.Error())
	}
	gatewayHW, err := rstack.DoResolveHardwareAddress6(results.Router, 500*time.Millisecond, 4)
	if err != nil {
		return errors.New("wifi: resolve gateway: " + err.Error())
	}
	s.s.SetGateway6(gatewayHW)
	s.log.Info("dhcp:complete",
		slog.String("ip", results.AssignedAddr.String()),
		slog.String("router", results.Router.String()),
		slog.Uint64("lease_sec", uint64(results.TLease)),
	)
	return nil
}

// Loop moves packets between the radio and the stack forever.
func (s *Stack) Loop() {
	for {
		send, recv, _ := s.recvAndSend()
		if send == 0 && recv == 0 {
			time.Sleep(pollTime)
		}
		runtime.Gosched()
	}
}

func (s *Stack) recvAndSend() (send, recv int, err error) {
	gotPacket, errRecv := s.dev.PollOne()
	if gotPacket {
		recv = 1
	}
	if errRecv != nil {
		s.log.Error("wifi:poll", slog.String("err", errRecv.Error()))
	}

	send, err = s.s.Encapsulate(s.sendbuf, -1, 0)
	if err != nil {
		s.log.Error("wifi:encapsulate", slog.Int("plen", send), slog.String("err", err.Error()))
	} else {
		err = errRecv
	}
	if send == 0 {
		return send, recv, err
	}
	if err = s.dev.SendEth(s.sendbuf[:send]); err != nil {
		s.log.Error("wifi:send", slog.Int("plen", send), slog.String("err", err.Error()))
	}
	return send, recv, err
}

// Dial resolves addr ("host:port", DNS names allowed) and opens a TCP
// connection with rx and tx buffers of bufSize bytes.
func (s *Stack) Dial(addr string, bufSize int) (*tcp.Conn, error) {
	host, port, err := SplitHostPort(addr)
	if err != nil {
		return nil, errors.New("wifi: " + err.Error())
	}
	rstack := s.s.StackRetrying(pollTime)

	ip, err := netip.ParseAddr(host)
	if err != nil {
		s.log.Info("dns:resolving", slog.String("host", host))
		addrs, err := rstack.DoLookupIP(host, 5*time.Second, 3)
		if err != nil {
			return nil, errors.New("wifi: lookup " + host + ": " + err.Error())
		}
		if len(addrs) == 0 {
			return nil, errors.New("wifi: lookup " + host + ": no addresses")
		}
		ip = addrs[0]
	}

	conn := new(tcp.Conn)
	err = conn.Configure(tcp.ConnConfig{
		RxBuf:             make([]byte, bufSize),
		TxBuf:             make([]byte, bufSize),
		TxPacketQueueSize: 3,
	})
	if err != nil {
		return nil, errors.New("wifi: tcp configure: " + err.Error())
	}

	localPort := uint16(s.s.Prand32()>>17) + 1024
	s.log.Info("tcp:dialing", slog.String("addr", addr), slog.Uint64("localPort", uint64(localPort)))
	err = rstack.DoDialTCP(conn, localPort, netip.AddrPortFrom(ip, port), 10*time.Second, 3)
	if err != nil {
		Close(conn)
		return nil, errors.New("wifi: dial " + addr + ": " + err.Error())
	}
	s.log.Info("tcp:connected", slog.String("state", conn.State().String()))
	return conn, nil
}

// Close closes conn, waits up to five seconds for the close handshake and
// then aborts whatever is left.
func Close(conn *tcp.Conn) {
	conn.Close()
	for i := 0; i < 50 && !conn.State().IsClosed(); i++ {
		time.Sleep(100 * time.Millisecond)
	}
	conn.Abort()
}

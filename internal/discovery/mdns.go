// Package discovery announces this machine and browses for peers on the
// local network using multicast DNS, so hosts and agents can find each
// other without any manual address entry.
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/dns/dnsmessage"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// ServiceType is the mDNS service instance suffix every multishiva peer
// registers under.
const ServiceType = "_multishiva._tcp.local."

// Port is the standard multicast DNS port.
const Port = 5353

var mdnsGroup = net.ParseIP("224.0.0.251")
var mdnsGroupV6 = net.ParseIP("ff02::fb")

const announceInterval = 5 * time.Second
const peerTTL = 3 * announceInterval

// Peer describes another multishiva instance discovered on the LAN.
type Peer struct {
	Name        string
	Address     string
	Port        int
	Fingerprint string
	LastSeen    time.Time
}

func instanceName(selfName string) string {
	return fmt.Sprintf("%s.%s", selfName, ServiceType)
}

// Announcer periodically sends unsolicited mDNS responses advertising this
// machine's name, port, and fingerprint digest (used by peers as a
// discovery-time hint; the real trust decision still happens during the
// wire handshake).
type Announcer struct {
	selfName    string
	port        int
	fingerprint string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAnnouncer constructs an Announcer for the given identity.
func NewAnnouncer(selfName string, port int, fingerprintDigest string) *Announcer {
	return &Announcer{selfName: selfName, port: port, fingerprint: fingerprintDigest}
}

// Start joins the mDNS multicast group on every usable interface and begins
// announcing every announceInterval until Stop is called. IPv6 is joined on
// a best-effort basis: a machine with IPv6 disabled at the kernel still gets
// working IPv4 discovery.
func (a *Announcer) Start(ctx context.Context) error {
	conn4, err := bindMulticast()
	if err != nil {
		return fmt.Errorf("discovery: bind udp4: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	pc4 := ipv4.NewPacketConn(conn4)
	ifaces, err := multicastInterfaces()
	if err != nil {
		conn4.Close()
		return fmt.Errorf("discovery: interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if err := pc4.JoinGroup(iface, &net.UDPAddr{IP: mdnsGroup}); err != nil {
			log.Printf("discovery: join group on %s: %v", iface.Name, err)
		}
	}
	pc4.SetMulticastTTL(255)

	var pc6 *ipv6.PacketConn
	if conn6, err := bindMulticastV6(); err != nil {
		log.Printf("discovery: bind udp6 (continuing with IPv4 only): %v", err)
	} else {
		pc6 = ipv6.NewPacketConn(conn6)
		for _, iface := range ifaces {
			if err := pc6.JoinGroup(iface, &net.UDPAddr{IP: mdnsGroupV6}); err != nil {
				log.Printf("discovery: join group v6 on %s: %v", iface.Name, err)
			}
		}
		pc6.SetMulticastHopLimit(255)
	}

	a.wg.Add(1)
	go a.loop(ctx, pc4, pc6)
	return nil
}

func (a *Announcer) loop(ctx context.Context, pc4 *ipv4.PacketConn, pc6 *ipv6.PacketConn) {
	defer a.wg.Done()
	defer pc4.Close()
	if pc6 != nil {
		defer pc6.Close()
	}

	ticker := time.NewTicker(announceInterval)
	defer ticker.Stop()

	a.announce(pc4, pc6)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.announce(pc4, pc6)
		}
	}
}

func (a *Announcer) announce(pc4 *ipv4.PacketConn, pc6 *ipv6.PacketConn) {
	packet, err := buildAnnouncement(a.selfName, a.port, a.fingerprint)
	if err != nil {
		log.Printf("discovery: build announcement: %v", err)
		return
	}
	dst4 := &net.UDPAddr{IP: mdnsGroup, Port: Port}
	if _, err := pc4.WriteTo(packet, nil, dst4); err != nil {
		log.Printf("discovery: send announcement v4: %v", err)
	}
	if pc6 != nil {
		dst6 := &net.UDPAddr{IP: mdnsGroupV6, Port: Port}
		if _, err := pc6.WriteTo(packet, nil, dst6); err != nil {
			log.Printf("discovery: send announcement v6: %v", err)
		}
	}
}

// Stop halts announcing.
func (a *Announcer) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

func buildAnnouncement(selfName string, port int, fingerprint string) ([]byte, error) {
	b := dnsmessage.NewBuilder(nil, dnsmessage.Header{Response: true, Authoritative: true})
	b.EnableCompression()
	if err := b.StartAnswers(); err != nil {
		return nil, err
	}

	inst := instanceName(selfName)
	hostname := selfName + ".local."

	if err := b.PTRResource(
		dnsmessage.ResourceHeader{Name: dnsmessage.MustNewName(ServiceType), Type: dnsmessage.TypePTR, Class: dnsmessage.ClassINET, TTL: 120},
		dnsmessage.PTRResource{PTR: dnsmessage.MustNewName(inst)},
	); err != nil {
		return nil, err
	}

	if err := b.SRVResource(
		dnsmessage.ResourceHeader{Name: dnsmessage.MustNewName(inst), Type: dnsmessage.TypeSRV, Class: dnsmessage.ClassINET, TTL: 120},
		dnsmessage.SRVResource{Priority: 0, Weight: 0, Port: uint16(port), Target: dnsmessage.MustNewName(hostname)},
	); err != nil {
		return nil, err
	}

	if err := b.TXTResource(
		dnsmessage.ResourceHeader{Name: dnsmessage.MustNewName(inst), Type: dnsmessage.TypeTXT, Class: dnsmessage.ClassINET, TTL: 120},
		dnsmessage.TXTResource{TXT: []string{"fp=" + fingerprint}},
	); err != nil {
		return nil, err
	}

	if addr := firstIPv4(); addr != nil {
		var a4 [4]byte
		copy(a4[:], addr.To4())
		if err := b.AResource(
			dnsmessage.ResourceHeader{Name: dnsmessage.MustNewName(hostname), Type: dnsmessage.TypeA, Class: dnsmessage.ClassINET, TTL: 120},
			dnsmessage.AResource{A: a4},
		); err != nil {
			return nil, err
		}
	}

	if addr := firstIPv6(); addr != nil {
		var a6 [16]byte
		copy(a6[:], addr.To16())
		if err := b.AAAAResource(
			dnsmessage.ResourceHeader{Name: dnsmessage.MustNewName(hostname), Type: dnsmessage.TypeAAAA, Class: dnsmessage.ClassINET, TTL: 120},
			dnsmessage.AAAAResource{AAAA: a6},
		); err != nil {
			return nil, err
		}
	}

	return b.Finish()
}

// Browser listens for mDNS traffic and maintains a live set of discovered
// peers, evicting entries that stop being re-announced within peerTTL.
type Browser struct {
	mu    sync.Mutex
	peers map[string]Peer
	subs  []chan Peer

	OnPeerFound   func(Peer)
	OnPeerExpired func(Peer)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBrowser constructs an empty Browser.
func NewBrowser() *Browser {
	return &Browser{peers: make(map[string]Peer)}
}

// Start joins the multicast group and begins parsing incoming packets. IPv6
// is joined on a best-effort basis, same as Announcer.Start.
func (br *Browser) Start(ctx context.Context) error {
	conn4, err := bindMulticast()
	if err != nil {
		return fmt.Errorf("discovery: bind udp4: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	br.cancel = cancel

	pc4 := ipv4.NewPacketConn(conn4)
	ifaces, err := multicastInterfaces()
	if err != nil {
		conn4.Close()
		return fmt.Errorf("discovery: interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if err := pc4.JoinGroup(iface, &net.UDPAddr{IP: mdnsGroup}); err != nil {
			log.Printf("discovery: join group on %s: %v", iface.Name, err)
		}
	}

	br.wg.Add(2)
	go br.readLoopV4(ctx, pc4)
	go br.expireLoop(ctx)

	if conn6, err := bindMulticastV6(); err != nil {
		log.Printf("discovery: bind udp6 (continuing with IPv4 only): %v", err)
	} else {
		pc6 := ipv6.NewPacketConn(conn6)
		for _, iface := range ifaces {
			if err := pc6.JoinGroup(iface, &net.UDPAddr{IP: mdnsGroupV6}); err != nil {
				log.Printf("discovery: join group v6 on %s: %v", iface.Name, err)
			}
		}
		br.wg.Add(1)
		go br.readLoopV6(ctx, pc6)
	}
	return nil
}

func (br *Browser) readLoopV4(ctx context.Context, pc *ipv4.PacketConn) {
	defer br.wg.Done()
	defer pc.Close()

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pc.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, _, src, err := pc.ReadFrom(buf)
		if err != nil {
			continue
		}
		peer, ok := parseAnnouncement(buf[:n], src)
		if !ok {
			continue
		}
		br.observe(peer)
	}
}

func (br *Browser) readLoopV6(ctx context.Context, pc *ipv6.PacketConn) {
	defer br.wg.Done()
	defer pc.Close()

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pc.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, _, src, err := pc.ReadFrom(buf)
		if err != nil {
			continue
		}
		peer, ok := parseAnnouncement(buf[:n], src)
		if !ok {
			continue
		}
		br.observe(peer)
	}
}

func (br *Browser) observe(peer Peer) {
	br.mu.Lock()
	_, existed := br.peers[peer.Name]
	br.peers[peer.Name] = peer
	subs := append([]chan Peer(nil), br.subs...)
	br.mu.Unlock()
	if existed {
		return
	}
	if br.OnPeerFound != nil {
		br.OnPeerFound(peer)
	}
	for _, ch := range subs {
		select {
		case ch <- peer:
		default:
		}
	}
}

func (br *Browser) subscribe() chan Peer {
	ch := make(chan Peer, 8)
	br.mu.Lock()
	br.subs = append(br.subs, ch)
	br.mu.Unlock()
	return ch
}

func (br *Browser) unsubscribe(ch chan Peer) {
	br.mu.Lock()
	for i, c := range br.subs {
		if c == ch {
			br.subs = append(br.subs[:i], br.subs[i+1:]...)
			break
		}
	}
	br.mu.Unlock()
}

// Discover waits up to timeout for a peer whose Name matches expectedHost,
// falling back to the first peer seen (already known or newly announced) if
// expectedHost is empty or never matches within the deadline. Used for
// zero-config peering when an agent starts with no host_address configured;
// the browser must already be running via Start.
func (br *Browser) Discover(ctx context.Context, expectedHost string, timeout time.Duration) (Peer, bool) {
	var first *Peer
	match := func(p Peer) (Peer, bool) {
		if expectedHost != "" && p.Name == expectedHost {
			return p, true
		}
		if first == nil {
			pCopy := p
			first = &pCopy
		}
		return Peer{}, false
	}

	known := br.Peers()
	for _, p := range known {
		if hit, ok := match(p); ok {
			return hit, true
		}
	}
	if expectedHost == "" && first != nil {
		if len(known) > 1 {
			log.Printf("discovery: multiple peers found with no expected host configured, using the first seen")
		}
		return *first, true
	}

	ch := br.subscribe()
	defer br.unsubscribe(ch)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			if first != nil {
				return *first, true
			}
			return Peer{}, false
		case <-timer.C:
			if first != nil {
				return *first, true
			}
			return Peer{}, false
		case p := <-ch:
			if hit, ok := match(p); ok {
				return hit, true
			}
		}
	}
}

func (br *Browser) expireLoop(ctx context.Context) {
	defer br.wg.Done()
	ticker := time.NewTicker(announceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			br.evictStale(time.Now())
		}
	}
}

// evictStale removes peers not re-announced within peerTTL of now and fires
// OnPeerExpired for each. Split out from expireLoop so tests can drive
// eviction without waiting on the real ticker.
func (br *Browser) evictStale(now time.Time) {
	br.mu.Lock()
	var expired []Peer
	for name, p := range br.peers {
		if now.Sub(p.LastSeen) > peerTTL {
			delete(br.peers, name)
			expired = append(expired, p)
		}
	}
	br.mu.Unlock()
	for _, p := range expired {
		if br.OnPeerExpired != nil {
			br.OnPeerExpired(p)
		}
	}
}

// Peers returns a snapshot of currently known peers.
func (br *Browser) Peers() []Peer {
	br.mu.Lock()
	defer br.mu.Unlock()
	out := make([]Peer, 0, len(br.peers))
	for _, p := range br.peers {
		out = append(out, p)
	}
	return out
}

// Stop halts browsing.
func (br *Browser) Stop() {
	if br.cancel != nil {
		br.cancel()
	}
	br.wg.Wait()
}

func parseAnnouncement(data []byte, src net.Addr) (Peer, bool) {
	var parser dnsmessage.Parser
	if _, err := parser.Start(data); err != nil {
		return Peer{}, false
	}
	parser.SkipAllQuestions()

	var srv dnsmessage.SRVResource
	var name string
	var fingerprint string
	var haveSRV bool

	for {
		h, err := parser.AnswerHeader()
		if err != nil {
			break
		}
		switch h.Type {
		case dnsmessage.TypeSRV:
			r, err := parser.SRVResource()
			if err != nil {
				continue
			}
			srv = r
			haveSRV = true
			name = strings.TrimSuffix(h.Name.String(), "."+ServiceType)
		case dnsmessage.TypeTXT:
			r, err := parser.TXTResource()
			if err != nil {
				continue
			}
			for _, kv := range r.TXT {
				if strings.HasPrefix(kv, "fp=") {
					fingerprint = strings.TrimPrefix(kv, "fp=")
				}
			}
		default:
			parser.SkipAnswer()
		}
	}

	if !haveSRV || name == "" {
		return Peer{}, false
	}

	addr := ""
	if udp, ok := src.(*net.UDPAddr); ok {
		addr = udp.IP.String()
	}

	return Peer{
		Name:        name,
		Address:     net.JoinHostPort(addr, strconv.Itoa(int(srv.Port))),
		Port:        int(srv.Port),
		Fingerprint: fingerprint,
		LastSeen:    time.Now(),
	}, true
}

func bindMulticast() (net.PacketConn, error) {
	var lc net.ListenConfig
	lc.Control = func(_, _ string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			opErr = setReuseAddrPort(fd)
		})
		if err != nil {
			return err
		}
		return opErr
	}
	return lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", Port))
}

func bindMulticastV6() (net.PacketConn, error) {
	var lc net.ListenConfig
	lc.Control = func(_, _ string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			opErr = setReuseAddrPort(fd)
		})
		if err != nil {
			return err
		}
		return opErr
	}
	return lc.ListenPacket(context.Background(), "udp6", fmt.Sprintf("[::]:%d", Port))
}

func multicastInterfaces() ([]*net.Interface, error) {
	all, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []*net.Interface
	for i := range all {
		iface := all[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		out = append(out, &iface)
	}
	return out, nil
}

func firstIPv4() net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipNet.IP.To4(); ip4 != nil {
				return ip4
			}
		}
	}
	return nil
}

func firstIPv6() net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP
			if ip.To4() != nil || ip.IsLinkLocalUnicast() {
				continue
			}
			if ip6 := ip.To16(); ip6 != nil {
				return ip6
			}
		}
	}
	return nil
}

// Package discovery announces game hosts on the local network over UDP
// multicast and collects announcements from others, so joiners can
// find a lobby without typing addresses.
package discovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"
)

const multicastIPAddress = "239.0.0.1"

// Host is the announced payload.
type Host struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Entry is one received announcement.
type Entry struct {
	Host Host
	Time time.Time
}

// Discover both announces the local host (unless announcing is off)
// and listens for other hosts on the same multicast group. Its own
// announcements are filtered out by a random per-instance key.
type Discover struct {
	Entries chan Entry

	host     Host
	port     uint16
	interval time.Duration
	announce bool
	key      string

	conn     *net.UDPConn
	sendConn *net.UDPConn
}

type option func(Discover) Discover

// WithInterval sets the gap between announcements.
func WithInterval(i time.Duration) option {
	return func(d Discover) Discover {
		d.interval = i
		return d
	}
}

// ListenOnly disables announcing; used by joiners browsing for hosts.
func ListenOnly() option {
	return func(d Discover) Discover {
		d.announce = false
		return d
	}
}

func New(host Host, port uint16, opts ...option) (*Discover, error) {
	d := Discover{
		Entries:  make(chan Entry, 100),
		host:     host,
		port:     port,
		interval: time.Second,
		announce: true,
		key:      fmt.Sprintf("%08x", rand.Uint32()),
	}
	for _, opt := range opts {
		d = opt(d)
	}
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", multicastIPAddress, d.port))
	if err != nil {
		return nil, err
	}
	d.conn, err = net.ListenMulticastUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	d.sendConn, err = net.DialUDP("udp", nil, addr)
	if err != nil {
		_ = d.conn.Close()
		return nil, err
	}
	return &d, nil
}

func (d *Discover) Start() {
	d.startListener()
	if d.announce {
		d.startAnnouncer()
	}
}

func (d *Discover) Close() error {
	err1 := d.conn.Close()
	err2 := d.sendConn.Close()
	return errors.Join(err1, err2)
}

// Hosts drains the entry channel into a map of the latest announcement
// time per host.
func (d *Discover) Hosts() map[Host]time.Time {
	hosts := make(map[Host]time.Time)
	for {
		select {
		case entry := <-d.Entries:
			hosts[entry.Host] = entry.Time
		default:
			return hosts
		}
	}
}

func (d *Discover) startListener() {
	go func() {
		for {
			buffer := make([]byte, 1024)
			n, _, err := d.conn.ReadFromUDP(buffer)
			if err != nil {
				return
			}
			if n < 8 || string(buffer[:8]) == d.key {
				continue
			}
			var host Host
			if err := json.Unmarshal(buffer[8:n], &host); err != nil {
				continue
			}
			select {
			case d.Entries <- Entry{Host: host, Time: time.Now()}:
			default:
			}
		}
	}()
}

func (d *Discover) startAnnouncer() {
	payload, err := json.Marshal(d.host)
	if err != nil {
		return
	}
	go func() {
		for {
			if _, err := d.sendConn.Write(append([]byte(d.key), payload...)); err != nil {
				return
			}
			time.Sleep(d.interval)
		}
	}()
}

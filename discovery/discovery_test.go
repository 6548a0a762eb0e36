package discovery

import (
	"fmt"
	"testing"
	"time"
)

func TestDiscover(t *testing.T) {
	n := 4
	fatal := make(chan error)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			discover, err := New(
				Host{Name: fmt.Sprint(i), Address: fmt.Sprintf("127.0.0.1:%d", 53550+i)},
				53561,
				WithInterval(200*time.Millisecond),
			)
			if err != nil {
				fatal <- err
				return
			}
			defer discover.Close()
			discover.Start()

			set := make(map[string]struct{})
			deadline := time.After(10 * time.Second)
			for len(set) < n-1 {
				select {
				case entry := <-discover.Entries:
					if entry.Host.Name == fmt.Sprint(i) {
						fatal <- fmt.Errorf("node %d received its own announcement", i)
						return
					}
					set[entry.Host.Name] = struct{}{}
				case <-deadline:
					fatal <- fmt.Errorf("node %d found only %d hosts", i, len(set))
					return
				}
			}
			for j := 0; j < n; j++ {
				if j == i {
					continue
				}
				if _, ok := set[fmt.Sprint(j)]; !ok {
					fatal <- fmt.Errorf("node %d did not find node %d", i, j)
					return
				}
			}
			fatal <- nil
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-fatal; err != nil {
			t.Fatal(err)
		}
	}
}

func TestListenOnlyNeverAnnounces(t *testing.T) {
	listener, err := New(Host{Name: "browser"}, 53562, ListenOnly())
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()
	listener.Start()

	watcher, err := New(Host{Name: "watcher"}, 53562, ListenOnly())
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Close()
	watcher.Start()

	select {
	case entry := <-watcher.Entries:
		t.Fatalf("listen-only instance announced: %+v", entry)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestHostsKeepsLatestAnnouncement(t *testing.T) {
	d := &Discover{Entries: make(chan Entry, 10)}
	early := time.Now().Add(-time.Minute)
	late := time.Now()
	h := Host{Name: "host", Address: "127.0.0.1:53550"}
	d.Entries <- Entry{Host: h, Time: early}
	d.Entries <- Entry{Host: h, Time: late}

	hosts := d.Hosts()
	if len(hosts) != 1 {
		t.Fatalf("expected 1 host, got %d", len(hosts))
	}
	if !hosts[h].Equal(late) {
		t.Fatalf("kept %v, want the latest %v", hosts[h], late)
	}
}

func TestClose(t *testing.T) {
	n := 4
	fatal := make(chan error)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			discover, err := New(Host{Name: fmt.Sprint(i)}, 53563)
			if err != nil {
				fatal <- err
				return
			}
			discover.Start()
			time.Sleep(300 * time.Millisecond)
			if err := discover.Close(); err != nil {
				fatal <- err
				return
			}
			fatal <- nil
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-fatal; err != nil {
			t.Fatal(err)
		}
	}
}

package network

import "fmt"

// Identity identifies a node by its IP address and listening port.
// Name is informational only and does not take part in equality.
type Identity struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
	Name string `json:"name,omitempty"`
}

// Addr returns the "ip:port" form used for dialing and map keys.
func (i Identity) Addr() string {
	return fmt.Sprintf("%s:%d", i.IP, i.Port)
}

// Same reports whether two identities refer to the same node.
func (i Identity) Same(other Identity) bool {
	return i.IP == other.IP && i.Port == other.Port
}

func (i Identity) String() string {
	if i.Name == "" {
		return i.Addr()
	}
	return fmt.Sprintf("%s (%s)", i.Name, i.Addr())
}

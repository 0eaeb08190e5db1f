package capture

import "context"

// Permission names an OS capability the capture path depends on.
type Permission string

// Permissions checked before live capture starts.
const (
	PermissionReceiveSMS Permission = "receive_sms"
	PermissionReadSMS    Permission = "read_sms"
)

// PermissionGate reports whether a permission has been granted.
type PermissionGate interface {
	Granted(ctx context.Context, p Permission) bool
}

// StaticGate grants exactly the permissions it holds.
type StaticGate map[Permission]bool

// NewStaticGate grants the given permissions.
func NewStaticGate(granted ...Permission) StaticGate {
	g := make(StaticGate, len(granted))
	for _, p := range granted {
		g[p] = true
	}
	return g
}

// Granted implements PermissionGate.
func (g StaticGate) Granted(_ context.Context, p Permission) bool {
	return g[p]
}

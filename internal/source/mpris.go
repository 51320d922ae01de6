package source

import (
	"context"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	mprisPrefix     = "org.mpris.MediaPlayer2."
	mprisObjectPath = "/org/mpris/MediaPlayer2"
	mprisPlayerIntf = "org.mpris.MediaPlayer2.Player"
)

// MPRISSource polls a media player on the D-Bus session bus through the
// MPRIS interface. If player is empty the first MPRIS-capable name on the
// bus is used, so the active player can change between polls.
type MPRISSource struct {
	player string

	mu   sync.Mutex
	conn *dbus.Conn
}

// NewMPRISSource creates an MPRIS source. player is the bus-name suffix
// (e.g. "spotify" for org.mpris.MediaPlayer2.spotify); empty means
// auto-detect.
func NewMPRISSource(player string) *MPRISSource {
	return &MPRISSource{player: player}
}

// Name implements Source.
func (m *MPRISSource) Name() string { return "mpris" }

// Current implements Source. All failure paths produce an error snapshot;
// a missing player is not a failure, just an idle snapshot.
func (m *MPRISSource) Current(ctx context.Context) (Snapshot, error) {
	conn, err := m.bus()
	if err != nil {
		return ErrorSnapshot(m.Name(), "session bus unavailable: "+err.Error()), nil
	}

	busName, err := m.findPlayer(ctx, conn)
	if err != nil {
		return ErrorSnapshot(m.Name(), err.Error()), nil
	}
	if busName == "" {
		return IdleSnapshot(m.Name()), nil
	}

	obj := conn.Object(busName, mprisObjectPath)

	status, err := stringProperty(ctx, obj, mprisPlayerIntf+".PlaybackStatus")
	if err != nil {
		return ErrorSnapshot(m.Name(), "read PlaybackStatus: "+err.Error()), nil
	}
	if status == "Stopped" {
		return IdleSnapshot(m.Name()), nil
	}

	metaVar, err := property(ctx, obj, mprisPlayerIntf+".Metadata")
	if err != nil {
		return ErrorSnapshot(m.Name(), "read Metadata: "+err.Error()), nil
	}
	meta, ok := metaVar.Value().(map[string]dbus.Variant)
	if !ok {
		return ErrorSnapshot(m.Name(), "unexpected Metadata type"), nil
	}

	snap := snapshotFromMetadata(meta)
	snap.Source = m.Name()
	snap.Playing = status == "Playing"

	// Position is a plain property, not part of Metadata.
	if posVar, err := property(ctx, obj, mprisPlayerIntf+".Position"); err == nil {
		if pos, ok := asInt64(posVar.Value()); ok {
			snap.Progress = pos / 1000 // microseconds to milliseconds
		}
	}

	return snap.Clamped(), nil
}

// Close releases the bus connection. Safe to call when no connection was
// ever established, and safe to call more than once.
func (m *MPRISSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}

// bus lazily opens a private session bus connection. Private because the
// shared dbus.SessionBus() connection must never be closed, and this
// source owns its connection's lifecycle.
func (m *MPRISSource) bus() (*dbus.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		return m.conn, nil
	}
	conn, err := dbus.SessionBusPrivate()
	if err != nil {
		return nil, err
	}
	if err := conn.Auth(nil); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.Hello(); err != nil {
		conn.Close()
		return nil, err
	}
	m.conn = conn
	return conn, nil
}

// findPlayer resolves the bus name to poll. Returns "" when no player is
// present on the bus.
func (m *MPRISSource) findPlayer(ctx context.Context, conn *dbus.Conn) (string, error) {
	if m.player != "" {
		return mprisPrefix + m.player, nil
	}

	var names []string
	call := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0)
	if err := call.Store(&names); err != nil {
		return "", err
	}
	for _, name := range names {
		if strings.HasPrefix(name, mprisPrefix) {
			return name, nil
		}
	}
	return "", nil
}

// snapshotFromMetadata decodes the MPRIS metadata map into a snapshot.
// Missing or oddly-typed fields are simply left absent.
func snapshotFromMetadata(meta map[string]dbus.Variant) Snapshot {
	var snap Snapshot

	if v, ok := meta["xesam:title"]; ok {
		if s, ok := v.Value().(string); ok {
			snap.Title = s
		}
	}
	if v, ok := meta["xesam:artist"]; ok {
		switch artists := v.Value().(type) {
		case []string:
			snap.Artist = strings.Join(artists, ", ")
		case string:
			snap.Artist = artists
		}
	}
	if v, ok := meta["xesam:album"]; ok {
		if s, ok := v.Value().(string); ok {
			snap.Album = s
		}
	}
	if v, ok := meta["mpris:artUrl"]; ok {
		if s, ok := v.Value().(string); ok {
			snap.AlbumArt = s
		}
	}
	if v, ok := meta["mpris:length"]; ok {
		if length, ok := asInt64(v.Value()); ok && length > 0 {
			snap.Duration = length / 1000 // microseconds to milliseconds
		}
	}

	return snap
}

// asInt64 normalizes the integer types different players put on the bus.
func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func property(ctx context.Context, obj dbus.BusObject, name string) (dbus.Variant, error) {
	var v dbus.Variant
	idx := strings.LastIndex(name, ".")
	call := obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0, name[:idx], name[idx+1:])
	if err := call.Store(&v); err != nil {
		return dbus.Variant{}, err
	}
	return v, nil
}

func stringProperty(ctx context.Context, obj dbus.BusObject, name string) (string, error) {
	v, err := property(ctx, obj, name)
	if err != nil {
		return "", err
	}
	s, ok := v.Value().(string)
	if !ok {
		return "", nil
	}
	return s, nil
}

package linkmonitor

import (
	"database/sql"
	"encoding/binary"

	_ "github.com/mattn/go-sqlite3"

	"github.com/openr-go/openr/pkg/serrors"
)

// configKey is the single row under which LinkMonitorState is stored,
// per spec §6: "written under key link-monitor-config in the config
// store... single-writer append-with-overwrite byte-string KV".
const configKey = "link-monitor-config"

// ConfigStore is the single-writer byte-string KV spec §9 calls for,
// backed by a local sqlite database. It is intentionally narrow: one
// table, one key, overwrite-on-write, matching "the core serializes
// LinkMonitorState to it on mutation and reads it once at startup."
type ConfigStore struct {
	db *sql.DB
}

// OpenConfigStore opens (creating if absent) the sqlite-backed config
// store at path.
func OpenConfigStore(path string) (*ConfigStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, serrors.Wrap("open link-monitor config store", err, "path", path)
	}
	const ddl = `CREATE TABLE IF NOT EXISTS config_kv (key TEXT PRIMARY KEY, value BLOB NOT NULL)`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, serrors.Wrap("create config_kv table", err)
	}
	return &ConfigStore{db: db}, nil
}

// Close releases the underlying database handle.
func (c *ConfigStore) Close() error {
	return c.db.Close()
}

// Load reads the persisted LinkMonitorState, returning ok=false if no
// state has ever been written (spec §6: "absence is tolerated").
func (c *ConfigStore) Load() (state LinkMonitorState, ok bool, err error) {
	var data []byte
	err = c.db.QueryRow(`SELECT value FROM config_kv WHERE key = ?`, configKey).Scan(&data)
	if err == sql.ErrNoRows {
		return LinkMonitorState{}, false, nil
	}
	if err != nil {
		return LinkMonitorState{}, false, serrors.Wrap("load link-monitor state", err)
	}
	state, err = decodeState(data)
	if err != nil {
		return LinkMonitorState{}, false, err
	}
	return state, true, nil
}

// Save overwrites the persisted LinkMonitorState. Per spec §5's
// "writes are fire-and-forget from the caller's perspective but
// ordered on the store's side," callers invoke Save synchronously from
// the owning event loop and do not wait on anything beyond its error.
func (c *ConfigStore) Save(state LinkMonitorState) error {
	data := encodeState(state)
	_, err := c.db.Exec(
		`INSERT INTO config_kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		configKey, data,
	)
	if err != nil {
		return serrors.Wrap("save link-monitor state", err)
	}
	return nil
}

// encodeState/decodeState use a hand-written big-endian, length-prefixed
// binary format of their own, distinct from pkg/wire's (it carries no
// schema-version byte), kept local since LinkMonitorState is not a
// KV-Store Value payload and has no cross-node interoperability
// requirement -- only this node ever reads back what it wrote.
func encodeState(s LinkMonitorState) []byte {
	buf := make([]byte, 0, 64)
	buf = binary.BigEndian.AppendUint32(buf, s.NodeLabel)
	buf = append(buf, boolByte(s.IsOverloaded))

	buf = appendStringSet(buf, s.OverloadedLinks)
	buf = appendStringUint32Map(buf, s.LinkMetricOverrides)

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s.AdjacencyMetricOverrides)))
	for k, v := range s.AdjacencyMetricOverrides {
		buf = appendString(buf, k.NodeID)
		buf = appendString(buf, k.IfName)
		buf = binary.BigEndian.AppendUint32(buf, v)
	}
	return buf
}

func decodeState(data []byte) (LinkMonitorState, error) {
	r := &byteReader{buf: data}
	s := NewLinkMonitorState(false)
	s.NodeLabel = r.u32()
	s.IsOverloaded = r.u8() != 0

	n := r.u32()
	for i := uint32(0); i < n; i++ {
		s.OverloadedLinks[r.str()] = true
	}
	m := r.u32()
	for i := uint32(0); i < m; i++ {
		k := r.str()
		s.LinkMetricOverrides[k] = r.u32()
	}
	a := r.u32()
	for i := uint32(0); i < a; i++ {
		key := AdjacencyOverrideKey{NodeID: r.str(), IfName: r.str()}
		s.AdjacencyMetricOverrides[key] = r.u32()
	}
	if r.err != nil {
		return LinkMonitorState{}, serrors.Wrap("decode link-monitor state", r.err)
	}
	return s, nil
}

func appendStringSet(buf []byte, set map[string]bool) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(set)))
	for k := range set {
		buf = appendString(buf, k)
	}
	return buf
}

func appendStringUint32Map(buf []byte, m map[string]uint32) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(m)))
	for k, v := range m {
		buf = appendString(buf, k)
		buf = binary.BigEndian.AppendUint32(buf, v)
	}
	return buf
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

type byteReader struct {
	buf []byte
	off int
	err error
}

func (r *byteReader) need(n int) bool {
	if r.err != nil || r.off+n > len(r.buf) {
		if r.err == nil {
			r.err = serrors.New("truncated link-monitor state payload")
		}
		return false
	}
	return true
}

func (r *byteReader) u8() byte {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *byteReader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *byteReader) str() string {
	n := r.u32()
	if !r.need(int(n)) {
		return ""
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s
}

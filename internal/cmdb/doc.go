// Package cmdb implements the CMDB Core: a persistent key->object
// configuration-item store. The in-memory map is the read path; a
// modernc.org/sqlite-backed durable store (cgo-free) persists every CI
// as an independently encoded {ci_key, ci_data, ci_type, updated_at}
// row, flushed by an auto-save loop or an explicit Save.
package cmdb

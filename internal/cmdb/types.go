package cmdb

import "time"

// TypeHint is the storage-tagging classification: a heuristic over a
// CI's present fields, used for tagging only. It never affects read
// semantics.
type TypeHint string

const (
	TypeHost    TypeHint = "host"
	TypeCluster TypeHint = "cluster"
	TypeService TypeHint = "service"
	TypeNetwork TypeHint = "network"
	TypeStorage TypeHint = "storage"
	TypeGeneral TypeHint = "general"
)

// classify maps a CI's present fields onto a type hint. The hint tags
// the stored row and feeds the per-type counts in Stats; reads never
// depend on it.
func classify(value map[string]interface{}) TypeHint {
	has := func(keys ...string) bool {
		for _, k := range keys {
			if _, ok := value[k]; ok {
				return true
			}
		}
		return false
	}
	switch {
	case has("os", "ip"):
		return TypeHost
	case has("nodes", "cluster_name"):
		return TypeCluster
	case has("port", "endpoint"):
		return TypeService
	case has("cidr", "vlan"):
		return TypeNetwork
	case has("pool", "capacity_bytes"):
		return TypeStorage
	default:
		return TypeGeneral
	}
}

// CI is one configuration item: an opaque key paired with a
// structured value blob.
type CI struct {
	Key       string
	Value     map[string]interface{}
	TypeHint  TypeHint
	UpdatedAt time.Time
}

// Stats summarises the CMDB's contents for the stats() operation.
type Stats struct {
	TotalCIs int
	ByType   map[TypeHint]int
	Dirty    int
}

package cluster

import (
	"sort"
	"sync"

	"github.com/buraksezer/consistent"
	"github.com/mohitkumar/strand/logger"
	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"
)

type hasher struct {
}

func NewHasher() *hasher {
	return &hasher{}
}

func (h hasher) Sum64(data []byte) uint64 {
	return murmur3.Sum64(data)
}

type RingConfig struct {
	PartitionCount int
}

// Ring assigns thread keys to cluster members through consistent hashing
// over a fixed number of partitions.
type Ring struct {
	RingConfig
	hring     *consistent.Consistent
	nodes     map[string]Node
	localNode Node
	mu        sync.RWMutex
}

type Node struct {
	Name string `json:"name"`
	Addr string `json:"addr"`
}

func (n Node) String() string {
	return n.Name
}

func NewRing(c RingConfig) *Ring {
	if c.PartitionCount <= 0 {
		c.PartitionCount = 271
	}
	cfg := consistent.Config{
		PartitionCount:    c.PartitionCount,
		ReplicationFactor: 20,
		Load:              1.25,
		Hasher:            NewHasher(),
	}
	return &Ring{
		RingConfig: c,
		hring:      consistent.New(nil, cfg),
		nodes:      make(map[string]Node),
	}
}

// JoinLocal adds the member this process runs as.
func (r *Ring) JoinLocal(name, addr string) error {
	r.mu.Lock()
	r.localNode = Node{Name: name, Addr: addr}
	r.mu.Unlock()
	return r.Join(name, addr)
}

func (r *Ring) Join(name, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[name]; ok {
		return nil
	}
	logger.Info("adding member to cluster", zap.String("node", name), zap.String("address", addr))
	node := Node{Name: name, Addr: addr}
	r.nodes[name] = node
	r.hring.Add(node)
	return nil
}

func (r *Ring) Leave(name string) error {
	logger.Info("removing member from cluster", zap.String("node", name))
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, name)
	r.hring.Remove(name)
	return nil
}

func (r *Ring) GetPartition(key string) int {
	return r.hring.FindPartitionID([]byte(key))
}

// Owner returns the member owning key.
func (r *Ring) Owner(key string) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.nodes) == 0 {
		return Node{}, false
	}
	owner := r.hring.LocateKey([]byte(key))
	if owner == nil {
		return Node{}, false
	}
	node, ok := r.nodes[owner.String()]
	return node, ok
}

// Owns reports whether the local member runs the thread with key. A ring
// without members owns everything.
func (r *Ring) Owns(key string) bool {
	r.mu.RLock()
	empty := len(r.nodes) == 0
	local := r.localNode.Name
	r.mu.RUnlock()
	if empty {
		return true
	}
	owner, ok := r.Owner(key)
	return ok && owner.Name == local
}

// GetPartitions returns the partitions owned by the local member.
func (r *Ring) GetPartitions() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	partitions := make([]int, 0)
	if len(r.nodes) == 0 {
		return partitions
	}
	for i := 0; i < r.PartitionCount; i++ {
		owner := r.hring.GetPartitionOwner(i)
		if owner != nil && owner.String() == r.localNode.Name {
			partitions = append(partitions, i)
		}
	}
	return partitions
}

func (r *Ring) Nodes() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nodes := make([]Node, 0, len(r.nodes))
	for _, node := range r.nodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Name < nodes[j].Name
	})
	return nodes
}

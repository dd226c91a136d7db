package idgen

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// 流水号和业务号使用雪花 ID：41 位毫秒时间 | 10 位节点号 | 12 位序列号
// 同一节点内严格递增，ledger_entry.entry_no 的唯一索引按写入顺序追加

const (
	epochMs   = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	nodeBits  = 10
	seqBits   = 12
	maxNode   = 1<<nodeBits - 1
	seqMask   = 1<<seqBits - 1
	nodeShift = seqBits
	timeShift = seqBits + nodeBits
)

// Node 单个节点的 ID 生成器，多实例部署时每个实例的 node 必须不同
type Node struct {
	mu     sync.Mutex
	node   int64
	lastMs int64
	seq    int64
	now    func() int64
}

func NewNode(node int64) (*Node, error) {
	if node < 0 || node > maxNode {
		return nil, fmt.Errorf("节点号必须在 0-%d 之间: %d", maxNode, node)
	}
	return &Node{
		node: node,
		now:  func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Next 返回下一个 ID
// 时钟回拨时沿用上一次的毫秒数继续递增序列号，保证不重复
func (n *Node) Next() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	ms := max(n.now(), n.lastMs)
	if ms == n.lastMs {
		n.seq = (n.seq + 1) & seqMask
		if n.seq == 0 {
			ms = n.waitAfter(n.lastMs)
		}
	} else {
		n.seq = 0
	}
	n.lastMs = ms

	return (ms-epochMs)<<timeShift | n.node<<nodeShift | n.seq
}

// waitAfter 序列号用尽，等到时钟走过 ms
func (n *Node) waitAfter(ms int64) int64 {
	for {
		if now := n.now(); now > ms {
			return now
		}
		time.Sleep(100 * time.Microsecond)
	}
}

var (
	defaultNode *Node
	initOnce    sync.Once
)

// Init 设置进程级生成器的节点号，只有第一次调用生效
func Init(node int64) {
	initOnce.Do(func() {
		n, err := NewNode(node)
		if err != nil {
			panic(err)
		}
		defaultNode = n
	})
}

// NextID 未调用 Init 时使用节点号 1
func NextID() int64 {
	Init(1)
	return defaultNode.Next()
}

func withPrefix(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, NextID())
}

// GenerateEntryNo 流水号，例如 TXN73828196213510144
func GenerateEntryNo() string { return withPrefix("TXN") }

// GenerateTransferRef 转账业务号，借贷两条流水共用
func GenerateTransferRef() string { return withPrefix("TRF") }

func GenerateFundingRef() string { return withPrefix("FND") }

func GenerateWithdrawalRef() string { return withPrefix("WDL") }

// GenerateAccountNumber 10 位随机账号，首位不为 0
// 唯一性由 account_number 唯一索引保证，冲突时调用方重新生成
func GenerateAccountNumber() string {
	return fmt.Sprintf("%d%09d", 1+rand.IntN(9), rand.IntN(1_000_000_000))
}

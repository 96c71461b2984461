// Package huffman implements the canonical byte-oriented Huffman codec used
// to compress the nibble-split stream produced by the block codec. The
// serialised frame format is:
//
//	[u32 tree_byte_len][tree_bytes][u32 plaintext_bit_len][code_bytes…]
//
// tree_bytes is a pre-order serialisation of the code tree: an internal
// node is a single 0x00 byte, a leaf is 0x01 followed by the raw symbol
// byte. All integers are little-endian.
package huffman

import (
	"bytes"
	"container/heap"
	"encoding/binary"
	"io"

	"github.com/vaultnetwork/vault/bitio"
	"golang.org/x/xerrors"
)

// ErrCorruptFrame is returned by Decompress when the tree is malformed, the
// code stream ends before plaintext_bit_len bits are consumed, or a bit
// walk hits a dead end (a nil child).
var ErrCorruptFrame = xerrors.New("huffman: corrupt frame")

const (
	tagInternal = 0x00
	tagLeaf     = 0x01
)

type node struct {
	weight      int
	seq         int // insertion/merge order, used to break weight ties deterministically
	isLeaf      bool
	symbol      byte
	left, right *node
}

// a min-heap of *node ordered by (weight, seq).
type nodeHeap []*node

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].weight != h[j].weight {
		return h[i].weight < h[j].weight
	}
	return h[i].seq < h[j].seq
}
func (h nodeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x interface{}) { *h = append(*h, x.(*node)) }
func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// buildTree constructs the canonical Huffman tree over the given byte
// frequencies (indexed 0..255). Symbols with a zero frequency other than
// one synthetic placeholder (added for single-symbol inputs, see below)
// never appear. Returns nil if there are no symbols at all.
func buildTree(freq [256]int) *node {
	var leaves []*node
	seq := 0
	for sym := 0; sym < 256; sym++ {
		if freq[sym] == 0 {
			continue
		}
		leaves = append(leaves, &node{weight: freq[sym], seq: seq, isLeaf: true, symbol: byte(sym)})
		seq++
	}
	if len(leaves) == 0 {
		return nil
	}
	if len(leaves) == 1 {
		// A single distinct symbol would otherwise collapse to a
		// zero-length code. Add an unreachable synthetic leaf so the real
		// symbol gets a genuine 1-bit code, per spec.
		real := leaves[0].symbol
		synthetic := byte(0)
		for int(synthetic) == int(real) {
			synthetic++
		}
		leaves = append(leaves, &node{weight: 0, seq: seq, isLeaf: true, symbol: synthetic})
		seq++
	}

	h := make(nodeHeap, len(leaves))
	copy(h, leaves)
	heap.Init(&h)
	for h.Len() > 1 {
		a := heap.Pop(&h).(*node)
		b := heap.Pop(&h).(*node)
		merged := &node{weight: a.weight + b.weight, seq: seq, left: a, right: b}
		seq++
		heap.Push(&h, merged)
	}
	return heap.Pop(&h).(*node)
}

func codeTable(root *node) map[byte][]byte {
	table := make(map[byte][]byte)
	if root == nil {
		return table
	}
	var walk func(n *node, path []byte)
	walk = func(n *node, path []byte) {
		if n.isLeaf {
			cp := make([]byte, len(path))
			copy(cp, path)
			table[n.symbol] = cp
			return
		}
		walk(n.left, append(path, 0))
		walk(n.right, append(path, 1))
	}
	walk(root, nil)
	return table
}

func serializeTree(root *node, out *bytes.Buffer) {
	if root == nil {
		return
	}
	if root.isLeaf {
		out.WriteByte(tagLeaf)
		out.WriteByte(root.symbol)
		return
	}
	out.WriteByte(tagInternal)
	serializeTree(root.left, out)
	serializeTree(root.right, out)
}

// treeCursor parses a pre-order tree serialisation, tracking position so
// corruption can be detected as "ran out of bytes".
type treeCursor struct {
	buf []byte
	pos int
}

func (c *treeCursor) parse() (*node, error) {
	if c.pos >= len(c.buf) {
		return nil, ErrCorruptFrame
	}
	tag := c.buf[c.pos]
	c.pos++
	switch tag {
	case tagLeaf:
		if c.pos >= len(c.buf) {
			return nil, ErrCorruptFrame
		}
		sym := c.buf[c.pos]
		c.pos++
		return &node{isLeaf: true, symbol: sym}, nil
	case tagInternal:
		left, err := c.parse()
		if err != nil {
			return nil, err
		}
		right, err := c.parse()
		if err != nil {
			return nil, err
		}
		return &node{left: left, right: right}, nil
	default:
		return nil, ErrCorruptFrame
	}
}

// Compress encodes p into a self-describing Huffman frame. An empty input
// produces an empty frame (zero tree length, zero bit length).
func Compress(p []byte) ([]byte, error) {
	var out bytes.Buffer
	if len(p) == 0 {
		if err := binary.Write(&out, binary.LittleEndian, uint32(0)); err != nil {
			return nil, err
		}
		if err := binary.Write(&out, binary.LittleEndian, uint32(0)); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	}

	var freq [256]int
	for _, b := range p {
		freq[b]++
	}
	root := buildTree(freq)
	table := codeTable(root)

	var treeBuf bytes.Buffer
	serializeTree(root, &treeBuf)

	bw, ws := bitio.NewSeekableWriter()
	for _, b := range p {
		code := table[b]
		for _, bit := range code {
			if err := bw.WriteBit(bit); err != nil {
				return nil, err
			}
		}
	}
	nbits := bw.BitsWritten()
	if err := bw.Close(); err != nil {
		return nil, err
	}
	codeBytes, err := io.ReadAll(ws.Reader())
	if err != nil {
		return nil, err
	}

	if err := binary.Write(&out, binary.LittleEndian, uint32(treeBuf.Len())); err != nil {
		return nil, err
	}
	out.Write(treeBuf.Bytes())
	if err := binary.Write(&out, binary.LittleEndian, uint32(nbits)); err != nil {
		return nil, err
	}
	out.Write(codeBytes)
	return out.Bytes(), nil
}

// Decompress reverses Compress, returning ErrCorruptFrame on any malformed
// tree, truncated code stream, or dead-end walk.
func Decompress(frame []byte) ([]byte, error) {
	if len(frame) < 4 {
		return nil, ErrCorruptFrame
	}
	treeLen := binary.LittleEndian.Uint32(frame[0:4])
	frame = frame[4:]
	if uint32(len(frame)) < treeLen {
		return nil, ErrCorruptFrame
	}
	treeBytes := frame[:treeLen]
	frame = frame[treeLen:]

	if treeLen == 0 {
		// Empty frame: no tree, no bits, no output.
		return nil, nil
	}

	if len(frame) < 4 {
		return nil, ErrCorruptFrame
	}
	bitLen := binary.LittleEndian.Uint32(frame[0:4])
	frame = frame[4:]
	if uint64(len(frame))*8 < uint64(bitLen) {
		return nil, ErrCorruptFrame
	}

	cursor := &treeCursor{buf: treeBytes}
	root, err := cursor.parse()
	if err != nil {
		return nil, err
	}
	if cursor.pos != len(treeBytes) {
		return nil, ErrCorruptFrame
	}

	if root.isLeaf {
		// A serialised tree is always >=2 leaves (see buildTree); a lone
		// leaf at the root is not a shape this codec ever produces.
		return nil, ErrCorruptFrame
	}

	br := bitio.NewReader(frame, int(bitLen))
	var out []byte
	for br.Remaining() > 0 {
		n := root
		for !n.isLeaf {
			bit, err := br.ReadBit()
			if err != nil {
				return nil, ErrCorruptFrame
			}
			if bit == 0 {
				n = n.left
			} else {
				n = n.right
			}
			if n == nil {
				return nil, ErrCorruptFrame
			}
		}
		out = append(out, n.symbol)
	}
	return out, nil
}

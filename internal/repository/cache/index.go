package cache

import (
	"time"

	"github.com/google/btree"
)

type indexItem struct {
	key       string
	size      int64
	timestamp time.Time
	seq       uint64
}

func lessIndexItem(a, b indexItem) bool {
	if !a.timestamp.Equal(b.timestamp) {
		return a.timestamp.Before(b.timestamp)
	}
	return a.seq < b.seq
}

// timestampIndex keeps entry metadata ordered by write time together with the running
// total of their sizes. It is not safe for concurrent use; owners hold their own lock.
type timestampIndex struct {
	tree  *btree.BTreeG[indexItem]
	byKey map[string]indexItem
	total int64
	seq   uint64
}

func newTimestampIndex() *timestampIndex {
	return &timestampIndex{
		tree:  btree.NewG(32, lessIndexItem),
		byKey: make(map[string]indexItem),
	}
}

func (i *timestampIndex) upsert(key string, size int64, ts time.Time) {
	i.remove(key)

	i.seq++
	item := indexItem{key: key, size: size, timestamp: ts, seq: i.seq}
	i.tree.ReplaceOrInsert(item)
	i.byKey[key] = item
	i.total += size
}

func (i *timestampIndex) remove(key string) (indexItem, bool) {
	item, ok := i.byKey[key]
	if !ok {
		return indexItem{}, false
	}
	i.tree.Delete(item)
	delete(i.byKey, key)
	i.total -= item.size
	return item, true
}

func (i *timestampIndex) lookup(key string) (indexItem, bool) {
	item, ok := i.byKey[key]
	return item, ok
}

func (i *timestampIndex) oldest(limit int) []EntryMeta {
	n := len(i.byKey)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]EntryMeta, 0, n)
	i.tree.Ascend(func(item indexItem) bool {
		out = append(out, EntryMeta{Key: item.key, Size: item.size, Timestamp: item.timestamp})
		return len(out) < n
	})
	return out
}

func (i *timestampIndex) reset() {
	i.tree.Clear(false)
	i.byKey = make(map[string]indexItem)
	i.total = 0
}

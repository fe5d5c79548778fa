package ratelimit

import "container/list"

// lruKeys tracks client keys in last-seen order. Not safe for concurrent use;
// callers hold their own lock.
type lruKeys struct {
	max   int
	items map[string]*list.Element
	list  *list.List
}

func newLRUKeys(max int) *lruKeys {
	if max < 0 {
		max = 0
	}
	return &lruKeys{
		max:   max,
		items: make(map[string]*list.Element),
		list:  list.New(),
	}
}

// touch marks key as most recently seen, inserting it if new.
func (lru *lruKeys) touch(key string) {
	if element, ok := lru.items[key]; ok {
		lru.list.MoveToFront(element)
		return
	}
	lru.items[key] = lru.list.PushFront(key)
}

func (lru *lruKeys) remove(key string) {
	element, ok := lru.items[key]
	if !ok {
		return
	}
	lru.list.Remove(element)
	delete(lru.items, key)
}

// evictIfNeeded drops least recently seen keys until size <= max and returns
// them. A max of zero never evicts.
func (lru *lruKeys) evictIfNeeded() []string {
	if lru.max == 0 || len(lru.items) <= lru.max {
		return nil
	}

	count := len(lru.items) - lru.max
	evicted := make([]string, 0, count)
	for i := 0; i < count; i++ {
		element := lru.list.Back()
		if element == nil {
			break
		}
		key := element.Value.(string)
		lru.list.Remove(element)
		delete(lru.items, key)
		evicted = append(evicted, key)
	}
	return evicted
}

func (lru *lruKeys) len() int {
	return len(lru.items)
}

package cache

// Cache is the read-through cache sitting in front of bbolt lookups.
type Cache interface {
	Get(key interface{}) (interface{}, bool)
	Add(key, value interface{})
	Keys() []interface{}
	Delete(key interface{})
	Purge()
}

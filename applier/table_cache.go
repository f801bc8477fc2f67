package applier

import (
	"context"
	"database/sql"
	"time"

	"github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"go.shardapply.dev/core/batch"
	"go.shardapply.dev/core/dialect"
)

// Queryer is the subset of *sql.DB and *sql.Tx used to read table metadata.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// TableCache caches batch.TableInfo of target tables, loaded through the
// primary-key query of its Dialect. Entries expire after a TTL so that
// changes of table definitions are eventually observed. A TableCache is used
// by a single Channel, and is not thread-safe beyond what the underlying LRU
// provides.
type TableCache struct {
	dialect dialect.Dialect
	cache   *lru.Cache
	ttl     time.Duration
}

// NewTableCache returns a TableCache of the given size (which must be > 0)
// and TTL. A zero TTL caches entries until evicted.
func NewTableCache(d dialect.Dialect, size int, ttl time.Duration) *TableCache {
	var cache, err = lru.New(size)
	if err != nil {
		panic(err.Error()) // Only errors on size <= 0.
	}
	return &TableCache{dialect: d, cache: cache, ttl: ttl}
}

// Lookup returns the TableInfo of |schema|.|table|, querying it through |q|
// if it's not cached. A table without a primary key has an empty PrimaryKey.
func (tc *TableCache) Lookup(ctx context.Context, q Queryer, schema, table string) (batch.TableInfo, error) {
	var key = tc.dialect.QualifiedName(schema, table)

	if v, ok := tc.cache.Get(key); ok {
		if ct := v.(cachedTable); tc.ttl == 0 || ct.at.Add(tc.ttl).After(timeNow()) {
			return ct.info, nil
		}
		tc.cache.Remove(key)
	}
	tableCacheMissesTotal.Inc()

	var query, args = tc.dialect.PrimaryKeyQuery(schema, table)
	var rows, err = q.QueryContext(ctx, query, args...)
	if err != nil {
		return batch.TableInfo{}, errors.WithMessagef(err, "querying primary key of %s", key)
	}
	defer rows.Close()

	var info batch.TableInfo
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return batch.TableInfo{}, errors.WithMessagef(err, "scanning primary key of %s", key)
		}
		info.PrimaryKey = append(info.PrimaryKey, name)
	}
	if err = rows.Err(); err != nil {
		return batch.TableInfo{}, errors.WithMessagef(err, "querying primary key of %s", key)
	}

	tc.cache.Add(key, cachedTable{info: info, at: timeNow()})
	return info, nil
}

// Invalidate a cached TableInfo of |schema|.|table|.
func (tc *TableCache) Invalidate(schema, table string) {
	tc.cache.Remove(tc.dialect.QualifiedName(schema, table))
}

type cachedTable struct {
	info batch.TableInfo
	at   time.Time
}

var timeNow = time.Now

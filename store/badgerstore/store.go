// Package badgerstore adapts the teacher's BadgerDB storage layer
// (datalog/storage/badger_store.go) into a concrete store.Store: a
// local, disk-backed stand-in for a live DynamoDB table, used by
// kvexec's tests and by the CLI's offline mode. Item attributes are
// kept as dynamodb attribute-value maps so the same Query/Scan
// contract the CLI and kvexec use against a real table works
// unmodified here.
package badgerstore

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/lattice-id/dynaquery/catalog"
	kvstore "github.com/lattice-id/dynaquery/store"
)

func init() {
	gob.Register(&types.AttributeValueMemberS{})
	gob.Register(&types.AttributeValueMemberN{})
	gob.Register(&types.AttributeValueMemberBOOL{})
	gob.Register(&types.AttributeValueMemberNULL{})
	gob.Register(&types.AttributeValueMemberSS{})
	gob.Register(&types.AttributeValueMemberNS{})
	gob.Register(&types.AttributeValueMemberB{})
	gob.Register(&types.AttributeValueMemberM{})
	gob.Register(&types.AttributeValueMemberL{})
}

// Store implements kvstore.Store against a local BadgerDB, one item
// per physical index key as described in keys.go. It opens badger with
// its default options and logging disabled, since this store serves
// tests and CLI demos, not a production read path.
type Store struct {
	db       *badger.DB
	features map[string]bool
}

// Open creates (or opens) a badger database at path. path == "" opens
// an in-memory database, convenient for tests. features is an
// explicit allow-list consulted by SupportsFeature; nil means no
// restrictions are configured and every feature reports supported,
// the convenient default for tests and CLI demos that don't exercise
// spec.md §5's feature-gating path.
func Open(path string, features map[string]bool) (*Store, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}
	return &Store{db: db, features: features}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// PutItem indexes one item under its table's primary key and every
// declared secondary index, per caps (a test/seed helper — this store
// has no general write/update path since spec.md scopes table
// provisioning and item writes out).
func (s *Store) PutItem(caps *catalog.Capabilities, item map[string]types.AttributeValue) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, idx := range caps.Indexes {
			pkVal, ok := item[idx.PartitionAttribute]
			if !ok {
				continue
			}
			pkBytes, err := encodeAttr(pkVal)
			if err != nil {
				return err
			}
			var skBytes []byte
			if idx.SortAttribute != "" {
				if skVal, ok := item[idx.SortAttribute]; ok {
					skBytes, err = encodeAttr(skVal)
					if err != nil {
						return err
					}
				}
			}
			key := physicalKey(caps.TableName, indexMarker(idx.Name), pkBytes, skBytes)
			value, err := encodeItem(item)
			if err != nil {
				return err
			}
			if err := txn.Set(key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Query implements kvstore.Store.
func (s *Store) Query(ctx context.Context, in *dynamodb.QueryInput) (*kvstore.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names := in.ExpressionAttributeNames
	vals := in.ExpressionAttributeValues
	table := deref(in.TableName)
	index := deref(in.IndexName)

	pkAttr, pkVal, skAttr, skOp, skVal, err := parseKeyCondition(deref(in.KeyConditionExpression), names, vals)
	if err != nil {
		return nil, err
	}

	pkBytes, err := encodeAttr(pkVal)
	if err != nil {
		return nil, err
	}
	prefix := prefixFor(table, indexMarker(index), pkBytes)

	var items []map[string]types.AttributeValue
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item, err := itemFromEntry(it.Item())
			if err != nil {
				return err
			}
			if skAttr != "" {
				if !matchesSort(item[skAttr], skOp, skVal) {
					continue
				}
			}
			matched, err := evalFilter(deref(in.FilterExpression), names, vals, item)
			if err != nil {
				return err
			}
			if matched {
				items = append(items, item)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortItemsDeterministically(items, skAttr)

	result := &kvstore.Result{Count: len(items)}
	if in.Select == types.SelectCount {
		return result, nil
	}

	if len(in.ExclusiveStartKey) > 0 {
		items = itemsAfterStartKey(items, in.ExclusiveStartKey, pkAttr, skAttr)
	}

	limit := int(derefInt32(in.Limit))
	if limit > 0 && len(items) > limit {
		result.LastEvaluatedKey = startKeyFor(items[limit-1], pkAttr, skAttr)
		items = items[:limit]
	}
	result.Items = items
	return result, nil
}

// itemsAfterStartKey resumes a paginated Query: it drops every item up
// to and including the one matching ExclusiveStartKey. Used together
// with startKeyFor, which builds the matching key from an item once a
// page is truncated at Limit.
func itemsAfterStartKey(items []map[string]types.AttributeValue, startKey map[string]types.AttributeValue, pkAttr, skAttr string) []map[string]types.AttributeValue {
	for i, item := range items {
		if startKeyMatches(item, startKey, pkAttr, skAttr) {
			return items[i+1:]
		}
	}
	return items
}

func startKeyMatches(item, startKey map[string]types.AttributeValue, pkAttr, skAttr string) bool {
	if cmp, ok := compareAttributeValues(item[pkAttr], startKey[pkAttr]); !ok || cmp != 0 {
		return false
	}
	if skAttr == "" {
		return true
	}
	cmp, ok := compareAttributeValues(item[skAttr], startKey[skAttr])
	return ok && cmp == 0
}

func startKeyFor(item map[string]types.AttributeValue, pkAttr, skAttr string) map[string]types.AttributeValue {
	key := map[string]types.AttributeValue{pkAttr: item[pkAttr]}
	if skAttr != "" {
		key[skAttr] = item[skAttr]
	}
	return key
}

// scanKeyAttr carries the opaque physical-key position used to resume
// a Scan, hex-encoded. Unlike Query's ExclusiveStartKey (built from
// real item attributes named by the index descriptor), Scan has no
// index context to name a key by, so this store uses its own internal
// ordering position instead — legal since DynamoDB's own
// LastEvaluatedKey is opaque to callers beyond "pass it back verbatim".
const scanKeyAttr = "_scanKey"

// Scan implements kvstore.Store.
func (s *Store) Scan(ctx context.Context, in *dynamodb.ScanInput) (*kvstore.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names := in.ExpressionAttributeNames
	vals := in.ExpressionAttributeValues
	prefix := []byte(deref(in.TableName) + "\x00" + primaryMarker() + "\x00")

	type entry struct {
		key  []byte
		item map[string]types.AttributeValue
	}
	var entries []entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item, err := itemFromEntry(it.Item())
			if err != nil {
				return err
			}
			matched, err := evalFilter(deref(in.FilterExpression), names, vals, item)
			if err != nil {
				return err
			}
			if matched {
				key := append([]byte{}, it.Item().Key()...)
				entries = append(entries, entry{key: key, item: item})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].key, entries[j].key) < 0 })

	if start, ok := in.ExclusiveStartKey[scanKeyAttr]; ok {
		startHex, _ := asString(start)
		for i, e := range entries {
			if fmt.Sprintf("%x", e.key) == startHex {
				entries = entries[i+1:]
				break
			}
		}
	}

	result := &kvstore.Result{Count: len(entries)}
	limit := int(derefInt32(in.Limit))
	if limit > 0 && len(entries) > limit {
		last := entries[limit-1]
		result.LastEvaluatedKey = map[string]types.AttributeValue{
			scanKeyAttr: &types.AttributeValueMemberS{Value: fmt.Sprintf("%x", last.key)},
		}
		entries = entries[:limit]
	}

	items := make([]map[string]types.AttributeValue, len(entries))
	for i, e := range entries {
		items[i] = e.item
	}
	result.Items = items
	return result, nil
}

// SupportsFeature implements kvstore.Store using the static feature
// map supplied at Open. A nil map (the default) supports everything;
// a non-nil map is an explicit allow-list, so a featureID absent from
// it reports unsupported.
func (s *Store) SupportsFeature(ctx context.Context, featureID string) (bool, error) {
	if s.features == nil {
		return true, nil
	}
	return s.features[featureID], nil
}

func itemFromEntry(item *badger.Item) (map[string]types.AttributeValue, error) {
	var out map[string]types.AttributeValue
	err := item.Value(func(val []byte) error {
		decoded, err := decodeItem(val)
		if err != nil {
			return err
		}
		out = decoded
		return nil
	})
	return out, err
}

func sortItemsDeterministically(items []map[string]types.AttributeValue, skAttr string) {
	if skAttr == "" {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		vi, _ := asString(items[i][skAttr])
		vj, _ := asString(items[j][skAttr])
		return vi < vj
	})
}

func matchesSort(v types.AttributeValue, op string, target types.AttributeValue) bool {
	if op == "begins_with" {
		s, ok := asString(v)
		t, _ := asString(target)
		return ok && len(s) >= len(t) && s[:len(t)] == t
	}
	cmp, ok := compareAttributeValues(v, target)
	if !ok {
		return false
	}
	switch op {
	case "=":
		return cmp == 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	default:
		return false
	}
}

func encodeItem(item map[string]types.AttributeValue) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(item); err != nil {
		return nil, fmt.Errorf("badgerstore: encode item: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeItem(data []byte) (map[string]types.AttributeValue, error) {
	var out map[string]types.AttributeValue
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&out); err != nil {
		return nil, fmt.Errorf("badgerstore: decode item: %w", err)
	}
	return out, nil
}

func encodeAttr(v types.AttributeValue) ([]byte, error) {
	switch t := v.(type) {
	case *types.AttributeValueMemberS:
		return []byte(t.Value), nil
	case *types.AttributeValueMemberN:
		return []byte(t.Value), nil
	default:
		return nil, fmt.Errorf("badgerstore: unsupported key attribute type %T", v)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt32(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}

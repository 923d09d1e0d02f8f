package main

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/lattice-id/dynaquery/catalog"
	"github.com/lattice-id/dynaquery/store/badgerstore"
)

// schemaCaps pairs a table's capabilities with the seed data the demo
// and .seed interactive command load into the store. Only accounts has
// a meaningful worked example (spec.md §8's scenarios are all
// accounts-shaped); the remaining tables get a couple of generic rows
// so planning/executing against them is still observable.
type schemaCaps struct {
	capabilities *catalog.Capabilities
	items        []map[string]types.AttributeValue
}

func wrap(caps *catalog.Capabilities) *schemaCaps {
	return &schemaCaps{capabilities: caps, items: demoItems(caps.TableName)}
}

func (s *schemaCaps) seed(store *badgerstore.Store) {
	for _, item := range s.items {
		_ = store.PutItem(s.capabilities, item)
	}
}

func str(v string) *types.AttributeValueMemberS { return &types.AttributeValueMemberS{Value: v} }

func demoItems(table string) []map[string]types.AttributeValue {
	switch table {
	case "accounts":
		return []map[string]types.AttributeValue{
			{
				"pk":              str("un#janedoe"),
				"userName":        str("janedoe"),
				"userNameInitial": str("j"),
				"email":           str("jane.doe@example.com"),
				"status":          str("active"),
			},
			{
				"pk":              str("un#johndoe"),
				"userName":        str("johndoe"),
				"userNameInitial": str("j"),
				"email":           str("john.doe@example.com"),
				"status":          str("active"),
			},
			{
				"pk":              str("un#alicew"),
				"userName":        str("alicew"),
				"userNameInitial": str("a"),
				"email":           str("alice.w@example.com"),
				"status":          str("suspended"),
			},
		}
	case "devices":
		return []map[string]types.AttributeValue{
			{"accountId": str("acct-1"), "deviceId": str("d0"), "pushToken": str("tok-a")},
			{"accountId": str("acct-1"), "deviceId": str("d1"), "pushToken": str("tok-b")},
		}
	case "sessions":
		return []map[string]types.AttributeValue{
			{"sessionId": str("sess-1"), "accountId": str("acct-1"), "createdAt": str("2026-01-01T00:00:00Z")},
			{"sessionId": str("sess-2"), "accountId": str("acct-1"), "createdAt": str("2026-02-01T00:00:00Z")},
		}
	case "tokens":
		return []map[string]types.AttributeValue{
			{"tokenId": str("tok-1"), "accountId": str("acct-1"), "issuedAt": str("2026-01-01T00:00:00Z")},
		}
	case "delegations":
		return []map[string]types.AttributeValue{
			{"delegationId": str("del-1"), "grantorAccountId": str("acct-1"), "granteeAccountId": str("acct-2")},
		}
	case "nonces":
		return []map[string]types.AttributeValue{
			{"nonceValue": str("n-1")},
		}
	case "dynamic-clients":
		return []map[string]types.AttributeValue{
			{"clientId": str("client-1"), "clientSecret": str("shh")},
		}
	case "buckets":
		return []map[string]types.AttributeValue{
			{"bucketId": str("bkt-1"), "ownerAccountId": str("acct-1")},
		}
	case "links":
		return []map[string]types.AttributeValue{
			{"linkId": str("link-1"), "sourceAccountId": str("acct-1"), "targetAccountId": str("acct-9")},
		}
	default:
		return nil
	}
}

// Package schema declares the concrete QueryCapabilities for each of
// the logical tables spec.md §6 names (accounts, devices, sessions,
// tokens, delegations, nonces, dynamic-clients, buckets, links). These
// are the catalogues the thin domain façades spec.md §1 describes as
// out of scope would hand to a planner.Planner; schema is the one
// place that knowledge lives, so every façade package shares a single
// source of truth instead of redeclaring index shapes ad hoc (the
// per-package test fixtures under planner/, reqbuild/, store/badgerstore,
// and kvexec are deliberately narrower stand-ins, not duplicates of
// this package — they exist so those packages' tests don't depend on
// schema's table choices).
//
// Each builder returns a fresh *catalog.Capabilities; callers needing
// AllowTableScans or a different NeverFilterable set mutate the result
// directly, the same "plain struct, documented zero-value defaults"
// idiom catalog.Capabilities itself follows.
package schema

import "github.com/lattice-id/dynaquery/catalog"

// Accounts returns the accounts table's capabilities: a single
// composite physical partition key (spec.md §6 "un#/em#/ph#/id#") plus
// the userNameInitial-userName-index secondary index used for
// starts-with lookups on userName.
func Accounts() *catalog.Capabilities {
	return &catalog.Capabilities{
		TableName: "accounts",
		Indexes: []catalog.IndexDescriptor{
			{
				PartitionAttribute: "pk",
				PartitionAliases:   []string{"userName", "email", "emails", "phone", "accountId"},
				Projection:         catalog.ProjectionAll,
			},
			{
				Name:               "userNameInitial-userName-index",
				PartitionAttribute: "userNameInitial",
				SortAttribute:      "userName",
				SortCapability:     catalog.SortRange,
				Projection:         catalog.ProjectionAll,
			},
		},
		NeverFilterable: map[string]struct{}{
			"passwordHash": {},
		},
		CompositeKey: accountsCompositeKey,
	}
}

// accountsCompositeKey implements spec.md §6's composite partition-key
// scheme: userName/email/phone/accountId all resolve to the same
// physical `pk` attribute via a type-tagged prefix, so a single
// partition absorbs four logically distinct lookups.
func accountsCompositeKey(attr string, value interface{}) (string, bool) {
	s, ok := value.(string)
	if !ok {
		return "", false
	}
	switch attr {
	case "userName":
		return "un#" + s, true
	case "email", "emails":
		return "em#" + s, true
	case "phone":
		return "ph#" + s, true
	case "accountId":
		return "id#" + s, true
	default:
		return "", false
	}
}

// Devices returns the devices table's capabilities: primary-keyed by
// accountId (partition) and deviceId (sort), so "all devices for an
// account" is a single partition query, plus a secondary index for
// looking a device up by its push-notification token.
func Devices() *catalog.Capabilities {
	return &catalog.Capabilities{
		TableName: "devices",
		Indexes: []catalog.IndexDescriptor{
			{
				PartitionAttribute: "accountId",
				SortAttribute:      "deviceId",
				SortCapability:     catalog.SortRange,
				Projection:         catalog.ProjectionAll,
			},
			{
				Name:               "pushToken-index",
				PartitionAttribute: "pushToken",
				Projection:         catalog.ProjectionAll,
			},
		},
	}
}

// Sessions returns the sessions table's capabilities: primary-keyed by
// sessionId, with a secondary index listing an account's sessions
// ordered by creation time.
func Sessions() *catalog.Capabilities {
	return &catalog.Capabilities{
		TableName: "sessions",
		Indexes: []catalog.IndexDescriptor{
			{
				PartitionAttribute: "sessionId",
				Projection:         catalog.ProjectionAll,
			},
			{
				Name:               "accountId-createdAt-index",
				PartitionAttribute: "accountId",
				SortAttribute:      "createdAt",
				SortCapability:     catalog.SortRange,
				Projection:         catalog.ProjectionAll,
			},
		},
	}
}

// Tokens returns the tokens table's capabilities: primary-keyed by the
// token's own identifier (e.g. a JWT's `jti`), with a secondary index
// for listing the tokens issued to one account.
func Tokens() *catalog.Capabilities {
	return &catalog.Capabilities{
		TableName: "tokens",
		Indexes: []catalog.IndexDescriptor{
			{
				PartitionAttribute: "tokenId",
				Projection:         catalog.ProjectionAll,
			},
			{
				Name:               "accountId-issuedAt-index",
				PartitionAttribute: "accountId",
				SortAttribute:      "issuedAt",
				SortCapability:     catalog.SortRange,
				Projection:         catalog.ProjectionAll,
			},
		},
		NeverFilterable: map[string]struct{}{
			"signingSecret": {},
		},
	}
}

// Delegations returns the delegations table's capabilities:
// primary-keyed by delegationId, with secondary indexes for listing
// delegations by either party (spec.md's "thin façade" domain
// includes account-to-account delegation of authority).
func Delegations() *catalog.Capabilities {
	return &catalog.Capabilities{
		TableName: "delegations",
		Indexes: []catalog.IndexDescriptor{
			{
				PartitionAttribute: "delegationId",
				Projection:         catalog.ProjectionAll,
			},
			{
				Name:               "grantorAccountId-index",
				PartitionAttribute: "grantorAccountId",
				Projection:         catalog.ProjectionAll,
			},
			{
				Name:               "granteeAccountId-index",
				PartitionAttribute: "granteeAccountId",
				Projection:         catalog.ProjectionAll,
			},
		},
	}
}

// Nonces returns the nonces table's capabilities: a single
// partition-only primary key on the nonce value itself. Nonces have
// no useful secondary access pattern and no residual filtering need;
// TTL housekeeping is out of scope (spec.md §1 Non-goals).
func Nonces() *catalog.Capabilities {
	return &catalog.Capabilities{
		TableName: "nonces",
		Indexes: []catalog.IndexDescriptor{
			{
				PartitionAttribute: "nonceValue",
				Projection:         catalog.ProjectionKeysOnly,
			},
		},
	}
}

// DynamicClients returns the dynamic-clients table's capabilities
// (OAuth dynamic client registration records), primary-keyed by
// clientId.
func DynamicClients() *catalog.Capabilities {
	return &catalog.Capabilities{
		TableName: "dynamic-clients",
		Indexes: []catalog.IndexDescriptor{
			{
				PartitionAttribute: "clientId",
				Projection:         catalog.ProjectionAll,
			},
		},
		NeverFilterable: map[string]struct{}{
			"clientSecret": {},
		},
	}
}

// Buckets returns the buckets table's capabilities: primary-keyed by
// bucketId, with a secondary index listing the buckets one account
// owns.
func Buckets() *catalog.Capabilities {
	return &catalog.Capabilities{
		TableName: "buckets",
		Indexes: []catalog.IndexDescriptor{
			{
				PartitionAttribute: "bucketId",
				Projection:         catalog.ProjectionAll,
			},
			{
				Name:               "ownerAccountId-index",
				PartitionAttribute: "ownerAccountId",
				Projection:         catalog.ProjectionAll,
			},
		},
	}
}

// Links returns the links table's capabilities: primary-keyed by
// linkId, with a secondary index listing the links originating from
// one account, ordered by target account for starts-with-style
// pagination over large fan-out accounts.
func Links() *catalog.Capabilities {
	return &catalog.Capabilities{
		TableName: "links",
		Indexes: []catalog.IndexDescriptor{
			{
				PartitionAttribute: "linkId",
				Projection:         catalog.ProjectionAll,
			},
			{
				Name:               "sourceAccountId-targetAccountId-index",
				PartitionAttribute: "sourceAccountId",
				SortAttribute:      "targetAccountId",
				SortCapability:     catalog.SortRange,
				Projection:         catalog.ProjectionAll,
			},
		},
	}
}

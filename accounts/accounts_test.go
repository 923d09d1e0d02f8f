package accounts_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"github.com/lattice-id/dynaquery/accounts"
	"github.com/lattice-id/dynaquery/schema"
	"github.com/lattice-id/dynaquery/store/badgerstore"
)

// seed puts a three-account fixture (janedoe, johndoe, Testaccount)
// plus an email-keyed item for janedoe under the
// real accounts catalogue (schema.Accounts()), exercising the façade
// end to end rather than a package-local stand-in (spec.md §8
// scenarios 1-3 and 6).
func seed(t *testing.T, s *badgerstore.Store) {
	t.Helper()
	caps := schema.Accounts()
	items := []map[string]types.AttributeValue{
		{
			"pk":              &types.AttributeValueMemberS{Value: "un#janedoe"},
			"userName":        &types.AttributeValueMemberS{Value: "janedoe"},
			"userNameInitial": &types.AttributeValueMemberS{Value: "j"},
			"email":           &types.AttributeValueMemberS{Value: "jane.doe@example.com"},
			"status":          &types.AttributeValueMemberS{Value: "active"},
		},
		{
			"pk":              &types.AttributeValueMemberS{Value: "un#johndoe"},
			"userName":        &types.AttributeValueMemberS{Value: "johndoe"},
			"userNameInitial": &types.AttributeValueMemberS{Value: "j"},
			"email":           &types.AttributeValueMemberS{Value: "john.doe@example.com"},
			"status":          &types.AttributeValueMemberS{Value: "active"},
		},
		{
			"pk":              &types.AttributeValueMemberS{Value: "un#Testaccount"},
			"userName":        &types.AttributeValueMemberS{Value: "Testaccount"},
			"userNameInitial": &types.AttributeValueMemberS{Value: "t"},
			"email":           &types.AttributeValueMemberS{Value: "test.account@example.com"},
			"status":          &types.AttributeValueMemberS{Value: "active"},
		},
	}
	for _, item := range items {
		require.NoError(t, s.PutItem(caps, item))
	}
	// Cross-index pk so FindByUserNameOrEmail's email branch has
	// something to match that isn't also reachable by userName.
	require.NoError(t, s.PutItem(caps, map[string]types.AttributeValue{
		"pk":              &types.AttributeValueMemberS{Value: "em#jane.doe@example.com"},
		"userName":        &types.AttributeValueMemberS{Value: "janedoe"},
		"userNameInitial": &types.AttributeValueMemberS{Value: "j"},
		"email":           &types.AttributeValueMemberS{Value: "jane.doe@example.com"},
		"status":          &types.AttributeValueMemberS{Value: "active"},
	}))
}

func userNames(accts []accounts.Account) []string {
	out := make([]string, len(accts))
	for i, a := range accts {
		out[i] = a.UserName
	}
	return out
}

func TestFindByUserNameOrEmail(t *testing.T) {
	s, err := badgerstore.Open("", nil)
	require.NoError(t, err)
	defer s.Close()
	seed(t, s)

	p := accounts.NewProvider(s, nil)

	byUserName, err := p.FindByUserNameOrEmail(context.Background(), "johndoe", "")
	require.NoError(t, err)
	require.Equal(t, []string{"johndoe"}, userNames(byUserName))

	byEmail, err := p.FindByUserNameOrEmail(context.Background(), "", "jane.doe@example.com")
	require.NoError(t, err)
	require.Equal(t, []string{"janedoe"}, userNames(byEmail))

	_, err = p.FindByUserNameOrEmail(context.Background(), "", "")
	require.Error(t, err)
}

func TestListByUserNamePrefix(t *testing.T) {
	s, err := badgerstore.Open("", nil)
	require.NoError(t, err)
	defer s.Close()
	seed(t, s)

	p := accounts.NewProvider(s, nil)

	page, cursor, err := p.ListByUserNamePrefix(context.Background(), "j", 25, "")
	require.NoError(t, err)
	require.Equal(t, []string{"janedoe", "johndoe"}, userNames(page))
	require.Empty(t, cursor)
}

// TestListByUserNamePrefixMixedCase is the regression test for the
// userNameInitial lowercasing bug: a prefix whose own case doesn't
// match the lowercase userNameInitial items are indexed under must
// still resolve, since spec.md §6 decomposes userName into its first
// character lowercased, regardless of the case the caller searches
// with.
func TestListByUserNamePrefixMixedCase(t *testing.T) {
	s, err := badgerstore.Open("", nil)
	require.NoError(t, err)
	defer s.Close()
	seed(t, s)

	p := accounts.NewProvider(s, nil)

	page, _, err := p.ListByUserNamePrefix(context.Background(), "Test", 25, "")
	require.NoError(t, err)
	require.Equal(t, []string{"Testaccount"}, userNames(page))
}

func TestListByUserNamePrefixRequiresNonEmptyPrefix(t *testing.T) {
	s, err := badgerstore.Open("", nil)
	require.NoError(t, err)
	defer s.Close()

	p := accounts.NewProvider(s, nil)
	_, _, err = p.ListByUserNamePrefix(context.Background(), "", 25, "")
	require.Error(t, err)
}

func TestCountByUserNamePrefix(t *testing.T) {
	s, err := badgerstore.Open("", nil)
	require.NoError(t, err)
	defer s.Close()
	seed(t, s)

	p := accounts.NewProvider(s, nil)

	result, err := p.CountByUserNamePrefix(context.Background(), "j")
	require.NoError(t, err)
	require.Equal(t, 2, result.Count)
	require.False(t, result.Approximate)

	// Same mixed-case regression as TestListByUserNamePrefixMixedCase,
	// but through the COUNT path.
	result, err = p.CountByUserNamePrefix(context.Background(), "Test")
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)
}

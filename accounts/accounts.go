// Package accounts is the one worked example of the thin domain façade
// spec.md §1 describes: "the surrounding data-access providers ... are
// thin façades: they translate domain calls into the planner's input,
// accept its output, submit requests to the underlying store, and
// marshal results back into domain entities." Everything upstream of
// the façade (expr, dnf, catalog, planner, reqbuild, cursor, kvexec,
// store) is the planner/executor proper and is exercised generically;
// this package exists only to show the wiring end to end against the
// accounts table's schema.Accounts() catalogue, covering spec.md §8's
// end-to-end scenarios 1-3 and 6.
package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/lattice-id/dynaquery/catalog"
	"github.com/lattice-id/dynaquery/expr"
	"github.com/lattice-id/dynaquery/kvexec"
	"github.com/lattice-id/dynaquery/planner"
	"github.com/lattice-id/dynaquery/schema"
	"github.com/lattice-id/dynaquery/store"
)

// Account is the domain entity the façade marshals store items into.
// Only the fields the worked scenarios touch are modeled; a complete
// façade would carry the full account schema.
type Account struct {
	UserName string
	Email    string
	Status   string
}

// Provider is the accounts façade: a planner bound to the accounts
// catalogue plus an executor bound to one store.
type Provider struct {
	caps   *catalog.Capabilities
	plan   *planner.Planner
	exec   *kvexec.Executor
}

// NewProvider builds a Provider against s, using the default accounts
// catalogue and executor defaults. cache, if non-nil, is installed on
// the planner so repeated filter shapes skip re-planning.
func NewProvider(s store.Store, cache *planner.Cache) *Provider {
	caps := schema.Accounts()
	return &Provider{
		caps: caps,
		plan: planner.New(caps, planner.Options{Cache: cache}),
		exec: kvexec.New(s, caps, kvexec.DefaultOptions()),
	}
}

// FindByUserNameOrEmail implements spec.md §8 scenario 1/2: an account
// matching either userName or email. Multiple matches are possible
// only if the store holds inconsistent data; callers typically expect
// zero or one result.
func (p *Provider) FindByUserNameOrEmail(ctx context.Context, userName, email string) ([]Account, error) {
	var filter expr.Expr
	switch {
	case userName != "" && email != "":
		filter = expr.Or(expr.Binary("userName", expr.Eq, userName), expr.Binary("email", expr.Eq, email))
	case userName != "":
		filter = expr.Binary("userName", expr.Eq, userName)
	case email != "":
		filter = expr.Binary("email", expr.Eq, email)
	default:
		return nil, fmt.Errorf("accounts: FindByUserNameOrEmail requires a userName or an email")
	}
	return p.list(ctx, filter, 25)
}

// ListByUserNamePrefix implements spec.md §8 scenario 3: a
// starts-with lookup against the userNameInitial-userName-index.
func (p *Provider) ListByUserNamePrefix(ctx context.Context, prefix string, pageSize int, cursorToken string) ([]Account, string, error) {
	if prefix == "" {
		return nil, "", fmt.Errorf("accounts: ListByUserNamePrefix requires a non-empty prefix")
	}
	initial := userNameInitial(prefix)
	filter := expr.And(
		expr.Binary("userNameInitial", expr.Eq, initial),
		expr.Binary("userName", expr.Sw, prefix),
	)
	plan, err := p.plan.Plan(filter)
	if err != nil {
		return nil, "", err
	}
	page, err := p.exec.Execute(ctx, plan, pageSize, cursorToken)
	if err != nil {
		return nil, "", err
	}
	return toAccounts(page.Items), page.Cursor, nil
}

// CountByUserNamePrefix implements spec.md §8 scenario 6: COUNT mode
// against the same starts-with shape as ListByUserNamePrefix.
func (p *Provider) CountByUserNamePrefix(ctx context.Context, prefix string) (kvexec.CountApproximate, error) {
	if prefix == "" {
		return kvexec.CountApproximate{}, fmt.Errorf("accounts: CountByUserNamePrefix requires a non-empty prefix")
	}
	initial := userNameInitial(prefix)
	filter := expr.And(
		expr.Binary("userNameInitial", expr.Eq, initial),
		expr.Binary("userName", expr.Sw, prefix),
	)
	plan, err := p.plan.Plan(filter)
	if err != nil {
		return kvexec.CountApproximate{}, err
	}
	return p.exec.Count(ctx, plan)
}

// userNameInitial decomposes a userName prefix into the lowercased
// first character the userNameInitial-userName-index is keyed on
// (spec.md §6: "the first character (lowercased) plus the full
// userName"), so a mixed-case prefix like "Test" still matches items
// indexed under their lowercase initial.
func userNameInitial(prefix string) string {
	return strings.ToLower(string([]rune(prefix)[:1]))
}

func (p *Provider) list(ctx context.Context, filter expr.Expr, pageSize int) ([]Account, error) {
	plan, err := p.plan.Plan(filter)
	if err != nil {
		return nil, err
	}
	page, err := p.exec.Execute(ctx, plan, pageSize, "")
	if err != nil {
		return nil, err
	}
	return toAccounts(page.Items), nil
}

func toAccounts(items []map[string]types.AttributeValue) []Account {
	out := make([]Account, 0, len(items))
	for _, item := range items {
		out = append(out, Account{
			UserName: stringAttr(item, "userName"),
			Email:    stringAttr(item, "email"),
			Status:   stringAttr(item, "status"),
		})
	}
	return out
}

func stringAttr(item map[string]types.AttributeValue, attr string) string {
	s, ok := item[attr].(*types.AttributeValueMemberS)
	if !ok {
		return ""
	}
	return s.Value
}

package remote

import (
	"context"
	"fmt"
	"net/url"
	"slices"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/openfga/datagate/pkg/authcontext"
	"github.com/openfga/datagate/pkg/authz"
)

// DirectoryResolver resolves the authenticated principal's permissions and
// affiliations through the identity directory:
//
//	GET /principals/<id>/permissions        {"items": ["datasets.read", ...]}
//	GET /principals/<id>/affiliations?kind  {"items": ["d-1", ...]}
//	GET /principals/<id>/groups             {"items": [{"code": "g-1"}, ...]}
//
// The principal is the subject of the auth claims on the context. Without one every
// lookup answers "nothing".
type DirectoryResolver struct {
	client *Client
}

var _ authz.Resolver = (*DirectoryResolver)(nil)

func NewDirectoryResolver(client *Client) *DirectoryResolver {
	return &DirectoryResolver{client: client}
}

func (d *DirectoryResolver) CurrentPrincipalID(ctx context.Context) (string, error) {
	subject, _ := authcontext.SubjectFromContext(ctx)
	return subject, nil
}

func (d *DirectoryResolver) strings(ctx context.Context, resource string, params url.Values, path string) ([]string, error) {
	principal, ok := authcontext.SubjectFromContext(ctx)
	if !ok {
		return nil, nil
	}

	ctx = withCorrelation(ctx)
	body, _, err := d.client.get(ctx, "principals/"+url.PathEscape(principal)+"/"+resource, params, false)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, &UnderpinningServiceError{
			Service:       d.client.service,
			StatusCode:    200,
			CorrelationID: correlationID(ctx),
			Err:           fmt.Errorf("%w: invalid json", errUnparsable),
		}
	}

	var out []string
	for _, v := range gjson.GetBytes(body, path).Array() {
		if s := v.String(); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func (d *DirectoryResolver) HasPermission(ctx context.Context, name string) (bool, error) {
	permissions, err := d.strings(ctx, "permissions", nil, "items")
	if err != nil {
		return false, err
	}
	return slices.Contains(permissions, name), nil
}

func (d *DirectoryResolver) AffiliatedIDs(ctx context.Context, kind string) ([]string, error) {
	return d.strings(ctx, "affiliations", url.Values{"kind": {kind}}, "items")
}

func (d *DirectoryResolver) AffiliatedGroupCodes(ctx context.Context) ([]string, error) {
	return d.strings(ctx, "groups", nil, "items.#.code")
}

// Snapshot resolves everything the given permissions and kinds could need in
// parallel and returns it as a StaticResolver, so a request calls the directory
// once per resource.
func (d *DirectoryResolver) Snapshot(ctx context.Context, permissions []string, kinds []string) (*authz.StaticResolver, error) {
	principal, _ := d.CurrentPrincipalID(ctx)
	snapshot := &authz.StaticResolver{
		PrincipalID: principal,
		Affiliated:  make(map[string][]string, len(kinds)),
	}

	var granted, groups []string
	affiliated := make([][]string, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		all, err := d.strings(gctx, "permissions", nil, "items")
		for _, p := range all {
			if slices.Contains(permissions, p) {
				granted = append(granted, p)
			}
		}
		return err
	})
	g.Go(func() error {
		var err error
		groups, err = d.AffiliatedGroupCodes(gctx)
		return err
	})
	for i, kind := range kinds {
		g.Go(func() error {
			var err error
			affiliated[i], err = d.AffiliatedIDs(gctx, kind)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snapshot.Permissions = granted
	snapshot.GroupCodes = groups
	for i, kind := range kinds {
		snapshot.Affiliated[kind] = affiliated[i]
	}
	return snapshot, nil
}

// Package gateway answers the paged lookups of every entity: it validates the
// lookup, runs the entity query under the caller's authorization and shapes the
// records into models.
package gateway

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/openfga/datagate/pkg/authz"
	"github.com/openfga/datagate/pkg/builder"
	"github.com/openfga/datagate/pkg/entities"
	"github.com/openfga/datagate/pkg/logger"
	"github.com/openfga/datagate/pkg/query"
)

type Gateway struct {
	factory *entities.Factory
	logger  logger.Logger
}

type Option func(*Gateway)

func WithLogger(l logger.Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

func New(factory *entities.Factory, opts ...Option) *Gateway {
	g := &Gateway{
		factory: factory,
		logger:  logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) authorizer(resolver authz.Resolver) *authz.Authorizer {
	return authz.NewAuthorizer(resolver, authz.WithLogger(g.logger))
}

func (g *Gateway) session(resolver authz.Resolver) *entities.Session {
	return g.factory.Session(g.authorizer(resolver))
}

type pagedQuery[R any] interface {
	Collect(ctx context.Context) ([]R, error)
	Count(ctx context.Context) (int, error)
}

// execute collects the records of q, builds them and counts every match when
// asked to.
func execute[M any, R any](ctx context.Context, q pagedQuery[R], b builder.Builder[M, R], c *Common) (*query.Page[M], error) {
	records, err := q.Collect(ctx)
	if err != nil {
		return nil, err
	}

	models, err := b.Build(ctx, c.Fields, records)
	if err != nil {
		return nil, err
	}

	page := query.NewPage(models)
	if c.WithCount {
		n, err := q.Count(ctx)
		if err != nil {
			return nil, err
		}
		page.Count = n
	}
	return page, nil
}

func (g *Gateway) Collections(ctx context.Context, resolver authz.Resolver, l *CollectionLookup) (*query.Page[entities.Collection], error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	s := g.session(resolver)
	return execute(ctx, g.collectionQuery(s, l), s.CollectionBuilder(l.Flags), &l.Common)
}

// AuditCollections lists collections without row level filtering. The caller
// must hold the audit permission.
func (g *Gateway) AuditCollections(ctx context.Context, resolver authz.Resolver, l *CollectionLookup) (*query.Page[entities.Collection], error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	a := g.authorizer(resolver)
	if err := a.Enforce(ctx, entities.PermissionAuditCollections); err != nil {
		return nil, err
	}

	s := g.factory.Session(a)
	audit := *l
	audit.Flags = authz.None
	g.logger.InfoWithContext(ctx, "collection audit", zap.String("fields", l.Fields.String()))
	return execute(ctx, g.collectionQuery(s, &audit), s.CollectionBuilder(authz.None), &audit.Common)
}

func (g *Gateway) collectionQuery(s *entities.Session, l *CollectionLookup) *entities.CollectionQuery {
	q := s.Collections().
		Fields(l.Fields).
		Order(l.Ordering).
		WithPaging(l.Paging).
		Authorize(l.Flags)
	if l.IDs != nil {
		q.IDs(l.IDs)
	}
	if l.ExcludedIDs != nil {
		q.ExcludedIDs(l.ExcludedIDs)
	}
	if l.OwnerIDs != nil {
		q.OwnerIDs(l.OwnerIDs)
	}
	if l.GroupCodes != nil {
		q.GroupCodes(l.GroupCodes)
	}
	if l.Like != "" {
		q.Like(l.Like)
	}
	if l.IsActive != nil {
		q.IsActive(*l.IsActive)
	}
	if l.WithDatasets != nil {
		q.WithDatasets(datasetQuery(s, l.WithDatasets).Authorize(l.Flags))
	}
	return q
}

func datasetQuery(s *entities.Session, f *DatasetFilter) *entities.DatasetQuery {
	q := s.Datasets()
	if f.IDs != nil {
		q.IDs(f.IDs)
	}
	if f.ExcludedIDs != nil {
		q.ExcludedIDs(f.ExcludedIDs)
	}
	if f.CollectionIDs != nil {
		q.CollectionIDs(f.CollectionIDs)
	}
	if f.Formats != nil {
		q.Formats(f.Formats)
	}
	if f.OwnerIDs != nil {
		q.OwnerIDs(f.OwnerIDs)
	}
	if f.Like != "" {
		q.Like(f.Like)
	}
	return q
}

func (g *Gateway) Datasets(ctx context.Context, resolver authz.Resolver, l *DatasetLookup) (*query.Page[entities.Dataset], error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	s := g.session(resolver)
	q := datasetQuery(s, &l.DatasetFilter).
		Fields(l.Fields).
		Order(l.Ordering).
		WithPaging(l.Paging).
		Authorize(l.Flags)
	if l.InCollectionsLike != "" {
		q.InCollections(s.Collections().Like(l.InCollectionsLike).Authorize(l.Flags))
	}
	return execute(ctx, q, s.DatasetBuilder(l.Flags), &l.Common)
}

func (g *Gateway) WorkflowRuns(ctx context.Context, resolver authz.Resolver, l *WorkflowRunLookup) (*query.Page[entities.WorkflowRun], error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	s := g.session(resolver)
	q := s.WorkflowRuns().
		Fields(l.Fields).
		Order(l.Ordering).
		WithPaging(l.Paging).
		Authorize(l.Flags)
	if l.IDs != nil {
		q.IDs(l.IDs)
	}
	if l.ExcludedIDs != nil {
		q.ExcludedIDs(l.ExcludedIDs)
	}
	if l.DatasetIDs != nil {
		q.DatasetIDs(l.DatasetIDs)
	}
	if l.Statuses != nil {
		q.Statuses(l.Statuses)
	}
	if l.Like != "" {
		q.Like(l.Like)
	}
	return execute(ctx, q, s.WorkflowRunBuilder(l.Flags), &l.Common)
}

func (g *Gateway) GroupMemberships(ctx context.Context, resolver authz.Resolver, l *GroupMembershipLookup) (*query.Page[entities.GroupMembership], error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	s := g.session(resolver)
	q := s.GroupMemberships().
		Fields(l.Fields).
		Order(l.Ordering).
		WithPaging(l.Paging).
		Authorize(l.Flags)
	if l.GroupCodes != nil {
		q.GroupCodes(l.GroupCodes)
	}
	if l.UserIDs != nil {
		q.UserIDs(l.UserIDs)
	}
	if l.Roles != nil {
		q.Roles(l.Roles)
	}
	if l.ExcludedUserIDs != nil {
		q.ExcludedUserIDs(l.ExcludedUserIDs)
	}
	return execute(ctx, q, s.GroupMembershipBuilder(), &l.Common)
}

// WorkflowRun returns a single run through the cached lookup of the factory. A run
// outside the caller's scope is reported as ErrNotFound.
func (g *Gateway) WorkflowRun(ctx context.Context, resolver authz.Resolver, l *WorkflowRunByID) (*entities.WorkflowRun, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	fetcher := g.factory.RunByID()
	if fetcher == nil {
		return nil, query.ErrNoSource
	}

	record, found, err := fetcher.ByID(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: workflow run %q", ErrNotFound, l.ID)
	}

	a := g.authorizer(resolver)
	s := g.factory.Session(a)
	scope := a.Scope(ctx, l.Flags, s.WorkflowRuns().Policy())
	if !scope.Allows(record.ID, record.OwnerID) {
		return nil, fmt.Errorf("%w: workflow run %q", ErrNotFound, l.ID)
	}

	models, err := s.WorkflowRunBuilder(l.Flags).Build(ctx, l.Fields, []entities.WorkflowRunRecord{record})
	if err != nil {
		return nil, err
	}
	return &models[0], nil
}

package entities

import (
	"time"

	"go.uber.org/zap"

	"github.com/openfga/datagate/pkg/authz"
	"github.com/openfga/datagate/pkg/builder"
	"github.com/openfga/datagate/pkg/logger"
	"github.com/openfga/datagate/pkg/query"
	"github.com/openfga/datagate/pkg/remote"
	"github.com/openfga/datagate/pkg/storage/sqlcommon"
)

const (
	workflowRunsPath     = "runs"
	groupMembershipsPath = "memberships"
)

// Factory holds the collaborators shared by every request. Entity queries and
// builders are created from a per-request Session.
type Factory struct {
	datastore   *sqlcommon.Datastore
	runs        *remote.Endpoint[WorkflowRunRecord]
	runByID     remote.ByIDFetcher[WorkflowRunRecord]
	memberships *remote.Endpoint[GroupMembershipRecord]
	logger      logger.Logger
	parallelism int
}

type FactoryOption func(*Factory)

func WithLogger(l logger.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = l
	}
}

// WithDatastore sets the relational store of collections and datasets.
func WithDatastore(ds *sqlcommon.Datastore) FactoryOption {
	return func(f *Factory) {
		f.datastore = ds
	}
}

// WithOrchestrator sets the workflow orchestrator client.
func WithOrchestrator(c *remote.Client) FactoryOption {
	return func(f *Factory) {
		f.runs = remote.NewEndpoint[WorkflowRunRecord](c, workflowRunsPath)
		f.runByID = f.runs
	}
}

// WithDirectory sets the identity directory client.
func WithDirectory(c *remote.Client) FactoryOption {
	return func(f *Factory) {
		f.memberships = remote.NewEndpoint[GroupMembershipRecord](c, groupMembershipsPath)
	}
}

// WithRunCache caches single run lookups. It must follow WithOrchestrator.
func WithRunCache(maxSize int64, ttl time.Duration) FactoryOption {
	return func(f *Factory) {
		if f.runs == nil || maxSize <= 0 {
			return
		}
		cached, err := remote.NewCachedByID[WorkflowRunRecord]("orchestrator", f.runs, maxSize, ttl)
		if err != nil {
			f.logger.Warn("workflow run cache disabled", zap.Error(err))
			return
		}
		f.runByID = cached
	}
}

// WithParallelism bounds how many relations a builder hydrates concurrently. 1 or
// less hydrates them one after another.
func WithParallelism(n int) FactoryOption {
	return func(f *Factory) {
		f.parallelism = n
	}
}

func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		logger:      logger.NewNoopLogger(),
		parallelism: 1,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Close releases the run cache, if any.
func (f *Factory) Close() {
	if c, ok := f.runByID.(*remote.CachedByID[WorkflowRunRecord]); ok {
		c.Close()
	}
}

// RunByID returns the single run lookup, cached when configured.
func (f *Factory) RunByID() remote.ByIDFetcher[WorkflowRunRecord] {
	return f.runByID
}

// Session binds the factory to the authorizer of one request.
func (f *Factory) Session(a *authz.Authorizer) *Session {
	return &Session{
		factory:     f,
		opts:        []query.Option{query.WithLogger(f.logger), query.WithAuthorizer(a)},
		parallelism: f.parallelism,
	}
}

// Session creates the queries and builders of one request. It must not be shared
// between requests.
type Session struct {
	factory     *Factory
	opts        []query.Option
	parallelism int
}

func (s *Session) Collections() *CollectionQuery {
	return newCollectionQuery(s.factory.datastore, s.opts...)
}

func (s *Session) Datasets() *DatasetQuery {
	return newDatasetQuery(s.factory.datastore, s.opts...)
}

func (s *Session) WorkflowRuns() *WorkflowRunQuery {
	return newWorkflowRunQuery(s.factory.runs, s.opts...)
}

func (s *Session) GroupMemberships() *GroupMembershipQuery {
	return newGroupMembershipQuery(s.factory.memberships, s.opts...)
}

// CollectionBuilder returns a builder whose nested queries are authorized with
// flags.
func (s *Session) CollectionBuilder(flags authz.Flags) *CollectionBuilder {
	return &CollectionBuilder{session: s, flags: flags}
}

func (s *Session) DatasetBuilder(flags authz.Flags) *DatasetBuilder {
	return &DatasetBuilder{session: s, flags: flags}
}

func (s *Session) WorkflowRunBuilder(flags authz.Flags) *WorkflowRunBuilder {
	return &WorkflowRunBuilder{session: s, flags: flags}
}

func (s *Session) GroupMembershipBuilder() builder.Builder[GroupMembership, GroupMembershipRecord] {
	return groupMembershipBuilder
}

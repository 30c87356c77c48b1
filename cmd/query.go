package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/openfga/datagate/internal/config"
	"github.com/openfga/datagate/pkg/authcontext"
	"github.com/openfga/datagate/pkg/authz"
	"github.com/openfga/datagate/pkg/entities"
	"github.com/openfga/datagate/pkg/fieldset"
	"github.com/openfga/datagate/pkg/gateway"
	"github.com/openfga/datagate/pkg/logger"
	"github.com/openfga/datagate/pkg/query"
	"github.com/openfga/datagate/pkg/remote"
	"github.com/openfga/datagate/pkg/telemetry"
)

const (
	fieldsFlag      = "fields"
	orderFlag       = "order"
	offsetFlag      = "offset"
	sizeFlag        = "size"
	countFlag       = "count"
	authorizeFlag   = "authorize"
	principalFlag   = "principal"
	permissionsFlag = "permissions"
	groupsFlag      = "groups"
	affiliatedFlag  = "affiliated"
	useDirectory    = "resolve-from-directory"

	idFlag            = "id"
	idsFlag           = "ids"
	excludeIDsFlag    = "exclude-ids"
	ownerIDsFlag      = "owner-ids"
	groupCodesFlag    = "group-codes"
	likeFlag          = "like"
	activeFlag        = "active"
	formatsFlag       = "formats"
	collectionIDsFlag = "collection-ids"
	collectionLike    = "collection-like"
	datasetIDsFlag    = "dataset-ids"
	statusesFlag      = "statuses"
	userIDsFlag       = "user-ids"
	excludeUsersFlag  = "exclude-user-ids"
	rolesFlag         = "roles"
)

var queryEntities = []string{
	"collections",
	"audit-collections",
	"datasets",
	"workflowruns",
	"workflowrun",
	"groupmemberships",
}

// NewQueryCommand returns the command running one lookup and printing the result
// as JSON.
func NewQueryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "query <entity>",
		Short:     "Run a lookup against the configured datastore and services",
		Long:      "Run a lookup and print the resulting page as JSON. Entities: " + strings.Join(queryEntities, ", ") + ".",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: queryEntities,
		RunE:      runQuery,
	}

	defaults := config.DefaultConfig()
	flags := cmd.Flags()
	addDatastoreFlags(flags, defaults)
	addServiceFlags(flags, defaults)

	flags.String(fieldsFlag, "", "(required) comma separated output fields, e.g. 'Id,Name,Datasets.Name'")
	flags.StringSlice(orderFlag, nil, "ordering fields, '-' prefixed for descending")
	flags.Int(offsetFlag, 0, "number of matches to skip")
	flags.Int(sizeFlag, 0, "maximum number of matches to return (0 returns every match)")
	flags.Bool(countFlag, false, "report the exact number of matches")
	flags.String(authorizeFlag, "any", "grant sources to apply: any combination of 'permission', 'context', 'owner', or 'none'")

	flags.String(principalFlag, "", "the principal the lookup runs as")
	flags.StringSlice(permissionsFlag, nil, "permissions held by the principal")
	flags.StringSlice(groupsFlag, nil, "group codes the principal is affiliated with")
	flags.StringArray(affiliatedFlag, nil, "affiliated ids per kind, e.g. 'collection=c1,c2' (repeatable)")
	flags.Bool(useDirectory, false, "resolve the principal's grants from the identity directory instead of the flags")

	flags.String(idFlag, "", "the id of a single workflow run")
	flags.StringSlice(idsFlag, nil, "restrict to these ids")
	flags.StringSlice(excludeIDsFlag, nil, "exclude these ids")
	flags.StringSlice(ownerIDsFlag, nil, "restrict to these owners")
	flags.StringSlice(groupCodesFlag, nil, "restrict to these group codes")
	flags.String(likeFlag, "", "case-insensitive name fragment")
	flags.Bool(activeFlag, true, "restrict collections by activity (only applied when given)")
	flags.StringSlice(formatsFlag, nil, "restrict datasets to these formats")
	flags.StringSlice(collectionIDsFlag, nil, "restrict datasets to these collections")
	flags.String(collectionLike, "", "restrict datasets to collections whose name matches")
	flags.StringSlice(datasetIDsFlag, nil, "restrict workflow runs to these datasets")
	flags.StringSlice(statusesFlag, nil, "restrict workflow runs to these statuses")
	flags.StringSlice(userIDsFlag, nil, "restrict memberships to these users")
	flags.StringSlice(excludeUsersFlag, nil, "exclude memberships of these users")
	flags.StringSlice(rolesFlag, nil, "restrict memberships to these roles")

	cmd.PreRun = bindFlagsFunc(datastoreFlags, serviceFlags)

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := ReadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Verify(); err != nil {
		return err
	}

	l, err := logger.NewLogger(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if cfg.Trace.Enabled {
		tp := telemetry.MustNewTracerProvider(
			telemetry.WithOTLPEndpoint(cfg.Trace.Endpoint),
			telemetry.WithServiceName(cfg.Trace.ServiceName),
			telemetry.WithSamplingRatio(cfg.Trace.SampleRatio),
		)
		defer func() {
			if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
				l.Warn("failed to flush traces", zap.Error(err))
			}
		}()
	}

	svc, err := newServices(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer svc.close()

	flags := cmd.Flags()
	ctx, resolver, err := svc.resolver(ctx, flags)
	if err != nil {
		return err
	}

	common, err := commonLookup(flags)
	if err != nil {
		return err
	}

	var result any
	switch args[0] {
	case "collections", "audit-collections":
		lookup := &gateway.CollectionLookup{
			Common:      *common,
			IDs:         stringSlice(flags, idsFlag),
			ExcludedIDs: stringSlice(flags, excludeIDsFlag),
			OwnerIDs:    stringSlice(flags, ownerIDsFlag),
			GroupCodes:  stringSlice(flags, groupCodesFlag),
			Like:        mustString(flags, likeFlag),
		}
		if flags.Changed(activeFlag) {
			active, _ := flags.GetBool(activeFlag)
			lookup.IsActive = &active
		}
		if formats := stringSlice(flags, formatsFlag); formats != nil {
			lookup.WithDatasets = &gateway.DatasetFilter{Formats: formats}
		}
		if args[0] == "audit-collections" {
			result, err = svc.gateway.AuditCollections(ctx, resolver, lookup)
		} else {
			result, err = svc.gateway.Collections(ctx, resolver, lookup)
		}
	case "datasets":
		result, err = svc.gateway.Datasets(ctx, resolver, &gateway.DatasetLookup{
			Common: *common,
			DatasetFilter: gateway.DatasetFilter{
				IDs:           stringSlice(flags, idsFlag),
				ExcludedIDs:   stringSlice(flags, excludeIDsFlag),
				CollectionIDs: stringSlice(flags, collectionIDsFlag),
				Formats:       stringSlice(flags, formatsFlag),
				OwnerIDs:      stringSlice(flags, ownerIDsFlag),
				Like:          mustString(flags, likeFlag),
			},
			InCollectionsLike: mustString(flags, collectionLike),
		})
	case "workflowruns":
		result, err = svc.gateway.WorkflowRuns(ctx, resolver, &gateway.WorkflowRunLookup{
			Common:      *common,
			IDs:         stringSlice(flags, idsFlag),
			ExcludedIDs: stringSlice(flags, excludeIDsFlag),
			DatasetIDs:  stringSlice(flags, datasetIDsFlag),
			Statuses:    stringSlice(flags, statusesFlag),
			Like:        mustString(flags, likeFlag),
		})
	case "workflowrun":
		result, err = svc.gateway.WorkflowRun(ctx, resolver, &gateway.WorkflowRunByID{
			ID:     mustString(flags, idFlag),
			Fields: common.Fields,
			Flags:  common.Flags,
		})
	case "groupmemberships":
		result, err = svc.gateway.GroupMemberships(ctx, resolver, &gateway.GroupMembershipLookup{
			Common:          *common,
			GroupCodes:      stringSlice(flags, groupCodesFlag),
			UserIDs:         stringSlice(flags, userIDsFlag),
			Roles:           stringSlice(flags, rolesFlag),
			ExcludedUserIDs: stringSlice(flags, excludeUsersFlag),
		})
	}
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// services holds the collaborators of one CLI invocation.
type services struct {
	gateway   *gateway.Gateway
	directory *remote.Client
	close     func()
}

func newServices(ctx context.Context, cfg *config.Config, l logger.Logger) (*services, error) {
	ds, err := openDatastore(ctx, cfg.Datastore, l)
	if err != nil {
		return nil, fmt.Errorf("failed to open the datastore: %w", err)
	}

	svc := &services{}
	opts := []entities.FactoryOption{
		entities.WithLogger(l),
		entities.WithDatastore(ds),
		entities.WithParallelism(cfg.Query.Parallelism),
	}

	if url := cfg.Remote.Orchestrator.URL; url != "" {
		client, err := newRemoteClient("orchestrator", cfg.Remote.Orchestrator, l)
		if err != nil {
			ds.Close()
			return nil, err
		}
		opts = append(opts, entities.WithOrchestrator(client))
		if cfg.Remote.RunCache.Enabled {
			opts = append(opts, entities.WithRunCache(cfg.Remote.RunCache.MaxSize, cfg.Remote.RunCache.TTL))
		}
	}
	if url := cfg.Remote.Directory.URL; url != "" {
		client, err := newRemoteClient("directory", cfg.Remote.Directory, l)
		if err != nil {
			ds.Close()
			return nil, err
		}
		svc.directory = client
		opts = append(opts, entities.WithDirectory(client))
	}

	factory := entities.NewFactory(opts...)
	svc.gateway = gateway.New(factory, gateway.WithLogger(l))
	svc.close = func() {
		factory.Close()
		ds.Close()
	}
	return svc, nil
}

func newRemoteClient(service string, cfg config.ServiceConfig, l logger.Logger) (*remote.Client, error) {
	return remote.NewClient(service, cfg.URL,
		remote.WithTimeout(cfg.Timeout),
		remote.WithRetryMax(cfg.RetryMax),
		remote.WithLogger(l),
	)
}

// resolver returns the grants the lookup runs with. With --resolve-from-directory
// the principal is put on the context and its grants are read from the directory.
func (s *services) resolver(ctx context.Context, flags *pflag.FlagSet) (context.Context, authz.Resolver, error) {
	principal := mustString(flags, principalFlag)

	if fromDirectory, _ := flags.GetBool(useDirectory); fromDirectory {
		if s.directory == nil {
			return nil, nil, fmt.Errorf("--%s requires --directory-url", useDirectory)
		}
		if principal == "" {
			return nil, nil, fmt.Errorf("--%s requires --%s", useDirectory, principalFlag)
		}
		ctx = authcontext.ContextWithAuthClaims(ctx, &authcontext.AuthClaims{Subject: principal})
		return ctx, remote.NewDirectoryResolver(s.directory), nil
	}

	affiliated := map[string][]string{}
	entries, _ := flags.GetStringArray(affiliatedFlag)
	for _, entry := range entries {
		kind, ids, ok := strings.Cut(entry, "=")
		if !ok || kind == "" {
			return nil, nil, fmt.Errorf("invalid --%s value %q, expected 'kind=id1,id2'", affiliatedFlag, entry)
		}
		affiliated[kind] = append(affiliated[kind], strings.Split(ids, ",")...)
	}

	return ctx, &authz.StaticResolver{
		PrincipalID: principal,
		Permissions: stringSlice(flags, permissionsFlag),
		Affiliated:  affiliated,
		GroupCodes:  stringSlice(flags, groupsFlag),
	}, nil
}

func commonLookup(flags *pflag.FlagSet) (*gateway.Common, error) {
	order, _ := flags.GetStringSlice(orderFlag)
	ordering, err := query.ParseOrdering(order)
	if err != nil {
		return nil, err
	}

	authFlags, err := authz.ParseFlags(mustString(flags, authorizeFlag))
	if err != nil {
		return nil, err
	}

	c := &gateway.Common{
		Fields:   fieldset.Parse(mustString(flags, fieldsFlag)),
		Ordering: ordering,
		Flags:    authFlags,
	}
	c.WithCount, _ = flags.GetBool(countFlag)

	offset, _ := flags.GetInt(offsetFlag)
	size, _ := flags.GetInt(sizeFlag)
	if offset != 0 || size != 0 {
		c.Paging = &query.Paging{Offset: offset, Size: size}
	}
	return c, nil
}

// stringSlice returns nil for flags that were not given, so that an omitted filter
// is not mistaken for an empty one.
func stringSlice(flags *pflag.FlagSet, name string) []string {
	if !flags.Changed(name) {
		return nil
	}
	values, _ := flags.GetStringSlice(name)
	if values == nil {
		values = []string{}
	}
	return values
}

func mustString(flags *pflag.FlagSet, name string) string {
	v, _ := flags.GetString(name)
	return v
}

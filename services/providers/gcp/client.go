// Package gcp fetches Compute Engine, Cloud Storage and Cloud SQL inventory.
package gcp

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	compute "cloud.google.com/go/compute/apiv1"
	"cloud.google.com/go/compute/apiv1/computepb"
	"cloud.google.com/go/storage"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/services/providers"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	sqladmin "google.golang.org/api/sqladmin/v1beta4"
)

// Instance is the slice of a Compute Engine VM the dashboard reports
type Instance struct {
	Name        string
	MachineType string
	Zone        string
	Status      string
}

// Bucket is a Cloud Storage bucket
type Bucket struct {
	Name         string
	Location     string
	StorageClass string
}

// SQLInstance is a Cloud SQL instance
type SQLInstance struct {
	Name            string
	DatabaseVersion string
	Tier            string
	Region          string
	State           string
}

// InstanceLister lists the VMs of a project across all zones
type InstanceLister interface {
	ListInstances(ctx context.Context, project string) ([]Instance, error)
}

// BucketLister lists the buckets of a project
type BucketLister interface {
	ListBuckets(ctx context.Context, project string) ([]Bucket, error)
}

// SQLLister lists the Cloud SQL instances of a project
type SQLLister interface {
	ListSQLInstances(ctx context.Context, project string) ([]SQLInstance, error)
}

// APIs are the GCP operations the client uses
type APIs struct {
	Instances InstanceLister
	Buckets   BucketLister
	SQL       SQLLister

	closers []func() error
}

// Close releases the underlying connections
func (a *APIs) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Factory builds API clients for resolved credentials
type Factory func(ctx context.Context, creds *models.GCPCredentials) (*APIs, error)

// ClientOptions maps resolved credentials onto client options. With no key
// material the clients use application default credentials.
func ClientOptions(creds *models.GCPCredentials) []option.ClientOption {
	switch {
	case len(creds.ServiceAccountJSON) > 0:
		return []option.ClientOption{option.WithAuthCredentialsJSON(option.ServiceAccount, creds.ServiceAccountJSON)}
	case creds.KeyFile != "":
		return []option.ClientOption{option.WithAuthCredentialsFile(option.ServiceAccount, creds.KeyFile)}
	}
	return nil
}

// SDKFactory builds real SDK clients
func SDKFactory() Factory {
	return func(ctx context.Context, creds *models.GCPCredentials) (*APIs, error) {
		opts := ClientOptions(creds)
		apis := &APIs{}

		vms, err := compute.NewInstancesRESTClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create compute client: %w", err)
		}
		apis.Instances = &sdkInstanceLister{client: vms}
		apis.closers = append(apis.closers, vms.Close)

		gcs, err := storage.NewClient(ctx, opts...)
		if err != nil {
			_ = apis.Close()
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		apis.Buckets = &sdkBucketLister{client: gcs}
		apis.closers = append(apis.closers, gcs.Close)

		sql, err := sqladmin.NewService(ctx, opts...)
		if err != nil {
			_ = apis.Close()
			return nil, fmt.Errorf("create sql admin client: %w", err)
		}
		apis.SQL = &sdkSQLLister{svc: sql}
		return apis, nil
	}
}

type sdkInstanceLister struct {
	client *compute.InstancesClient
}

func (l *sdkInstanceLister) ListInstances(ctx context.Context, project string) ([]Instance, error) {
	var out []Instance
	it := l.client.AggregatedList(ctx, &computepb.AggregatedListInstancesRequest{Project: project})
	for {
		pair, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		if pair.Value == nil {
			continue
		}
		for _, vm := range pair.Value.GetInstances() {
			out = append(out, instanceFromSDK(vm))
		}
	}
	return out, nil
}

func instanceFromSDK(vm *computepb.Instance) Instance {
	machineType := "n1-standard-1"
	if mt := vm.GetMachineType(); mt != "" {
		machineType = path.Base(mt)
	}
	return Instance{
		Name:        vm.GetName(),
		MachineType: machineType,
		Zone:        path.Base(vm.GetZone()),
		Status:      vm.GetStatus(),
	}
}

type sdkBucketLister struct {
	client *storage.Client
}

func (l *sdkBucketLister) ListBuckets(ctx context.Context, project string) ([]Bucket, error) {
	var out []Bucket
	it := l.client.Buckets(ctx, project)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Bucket{
			Name:         attrs.Name,
			Location:     strings.ToLower(attrs.Location),
			StorageClass: attrs.StorageClass,
		})
	}
	return out, nil
}

type sdkSQLLister struct {
	svc *sqladmin.Service
}

func (l *sdkSQLLister) ListSQLInstances(ctx context.Context, project string) ([]SQLInstance, error) {
	var out []SQLInstance
	err := l.svc.Instances.List(project).Pages(ctx, func(resp *sqladmin.InstancesListResponse) error {
		for _, db := range resp.Items {
			inst := SQLInstance{
				Name:            db.Name,
				DatabaseVersion: db.DatabaseVersion,
				Region:          db.Region,
				State:           db.State,
			}
			if db.Settings != nil {
				inst.Tier = db.Settings.Tier
			}
			out = append(out, inst)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Client reports GCP inventory
type Client struct {
	creds   providers.CredentialSource
	factory Factory
	logger  *zap.Logger
}

var _ providers.Client = (*Client)(nil)

// NewClient creates a GCP inventory client
func NewClient(creds providers.CredentialSource, factory Factory, logger *zap.Logger) *Client {
	if factory == nil {
		factory = SDKFactory()
	}
	return &Client{creds: creds, factory: factory, logger: logger}
}

// Provider implements providers.Client
func (c *Client) Provider() models.Provider {
	return models.ProviderGCP
}

// FetchInventory implements providers.Client
func (c *Client) FetchInventory(ctx context.Context, principal *models.Principal) (*models.ProviderInventory, error) {
	creds, err := c.creds.GetCredentials(ctx, models.ProviderGCP, principal)
	if err != nil {
		return nil, err
	}
	if creds.GCP == nil || creds.GCP.ProjectID == "" {
		return nil, providers.NewProviderError(models.ProviderGCP, "resolve credentials", errors.New("no GCP project in bundle"))
	}
	project := creds.GCP.ProjectID

	apis, err := c.factory(ctx, creds.GCP)
	if err != nil {
		return nil, providers.NewProviderError(models.ProviderGCP, "create clients", err)
	}
	defer func() {
		if err := apis.Close(); err != nil {
			c.logger.Debug("failed to close GCP clients", zap.Error(err))
		}
	}()

	vms, err := apis.Instances.ListInstances(ctx, project)
	if err != nil {
		return nil, providers.NewProviderError(models.ProviderGCP, "list instances", err)
	}

	b := providers.NewInventoryBuilder(models.ProviderGCP, providers.GCPRates)
	stopped := 0
	for _, vm := range vms {
		health := providers.Warning
		status := "stopped"
		if vm.Status == "RUNNING" {
			health = providers.Healthy
			status = "running"
		} else {
			stopped++
		}
		b.AddInstance(models.Instance{
			Name:     vm.Name,
			Type:     vm.MachineType,
			Status:   status,
			Region:   vm.Zone,
			CPU:      2,
			MemoryGB: 4,
		}, health, "Compute Engine")
	}

	if apis.Buckets != nil {
		buckets, err := apis.Buckets.ListBuckets(ctx, project)
		if err != nil {
			c.logger.Warn("failed to list GCS buckets", zap.String("project", project), zap.Error(err))
		}
		for _, bkt := range buckets {
			b.AddStorage(models.StorageVolume{
				Name:   bkt.Name,
				Type:   "Cloud Storage",
				Region: bkt.Location,
			}, providers.Healthy)
		}
	}

	if apis.SQL != nil {
		dbs, err := apis.SQL.ListSQLInstances(ctx, project)
		if err != nil {
			c.logger.Warn("failed to list Cloud SQL instances", zap.String("project", project), zap.Error(err))
		}
		for _, db := range dbs {
			engine, version := splitDatabaseVersion(db.DatabaseVersion)
			b.AddDatabase(models.Database{
				Name:    db.Name,
				Engine:  engine,
				Version: version,
				Size:    db.Tier,
			}, sqlHealth(db.State), "Cloud SQL", db.Region)
		}
	}

	if stopped > 0 {
		b.AddAlert("warning", "Compute Engine", providers.StoppedAlert(stopped, "VM"))
	}
	return b.Build(), nil
}

// splitDatabaseVersion turns "POSTGRES_14" into ("PostgreSQL", "14") and
// "MYSQL_8_0" into ("MySQL", "8.0")
func splitDatabaseVersion(v string) (string, string) {
	family, rest, _ := strings.Cut(v, "_")
	version := strings.ReplaceAll(rest, "_", ".")
	switch family {
	case "POSTGRES":
		return "PostgreSQL", version
	case "MYSQL":
		return "MySQL", version
	case "SQLSERVER":
		return "SQL Server", strings.ToLower(version)
	}
	return family, version
}

func sqlHealth(state string) providers.Health {
	switch state {
	case "RUNNABLE":
		return providers.Healthy
	case "PENDING_CREATE", "MAINTENANCE", "SUSPENDED":
		return providers.Warning
	default:
		return providers.Critical
	}
}

// Package azure fetches virtual machine and blob container inventory with the Azure SDK.
package azure

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/services/providers"
	"go.uber.org/zap"
)

// VM is the slice of a virtual machine the dashboard reports
type VM struct {
	Name       string
	Size       string
	Location   string
	PowerState string
}

// VMLister lists the virtual machines of a subscription
type VMLister interface {
	ListVMs(ctx context.Context) ([]VM, error)
}

// ContainerLister lists the blob containers of a storage account
type ContainerLister interface {
	ListContainers(ctx context.Context) ([]string, error)
}

// APIs are the Azure operations the client uses. Containers is nil when no
// storage account is configured.
type APIs struct {
	VMs        VMLister
	Containers ContainerLister
}

// Factory builds API clients for resolved credentials
type Factory func(ctx context.Context, creds *models.AzureCredentials) (*APIs, error)

// SDKFactory builds real SDK clients
func SDKFactory() Factory {
	return func(_ context.Context, creds *models.AzureCredentials) (*APIs, error) {
		cred, err := NewTokenCredential(creds)
		if err != nil {
			return nil, err
		}
		vms, err := armcompute.NewVirtualMachinesClient(creds.SubscriptionID, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("create compute client: %w", err)
		}
		apis := &APIs{VMs: &sdkVMLister{client: vms}}

		if creds.StorageAccount != "" {
			url := fmt.Sprintf("https://%s.blob.core.windows.net/", creds.StorageAccount)
			blob, err := azblob.NewClient(url, cred, nil)
			if err != nil {
				return nil, fmt.Errorf("create blob client: %w", err)
			}
			apis.Containers = &sdkContainerLister{client: blob}
		}
		return apis, nil
	}
}

// NewTokenCredential selects managed identity or a client secret credential
func NewTokenCredential(creds *models.AzureCredentials) (azcore.TokenCredential, error) {
	if creds.UseManagedIdentity {
		cred, err := azidentity.NewManagedIdentityCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("create managed identity credential: %w", err)
		}
		return cred, nil
	}
	cred, err := azidentity.NewClientSecretCredential(creds.TenantID, creds.ClientID, creds.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("create client secret credential: %w", err)
	}
	return cred, nil
}

type sdkVMLister struct {
	client *armcompute.VirtualMachinesClient
}

func (l *sdkVMLister) ListVMs(ctx context.Context) ([]VM, error) {
	var out []VM
	pager := l.client.NewListAllPager(&armcompute.VirtualMachinesClientListAllOptions{
		StatusOnly: to.Ptr("true"),
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, vm := range page.Value {
			out = append(out, vmFromSDK(vm))
		}
	}
	return out, nil
}

func vmFromSDK(vm *armcompute.VirtualMachine) VM {
	out := VM{
		Name:       deref(vm.Name),
		Location:   deref(vm.Location),
		Size:       "Standard_B2s",
		PowerState: "unknown",
	}
	if vm.Properties == nil {
		return out
	}
	if hp := vm.Properties.HardwareProfile; hp != nil && hp.VMSize != nil {
		out.Size = string(*hp.VMSize)
	}
	if iv := vm.Properties.InstanceView; iv != nil {
		for _, s := range iv.Statuses {
			if s == nil || s.Code == nil {
				continue
			}
			if state, ok := strings.CutPrefix(*s.Code, "PowerState/"); ok {
				out.PowerState = state
			}
		}
	}
	return out
}

type sdkContainerLister struct {
	client *azblob.Client
}

func (l *sdkContainerLister) ListContainers(ctx context.Context) ([]string, error) {
	var out []string
	pager := l.client.NewListContainersPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range page.ContainerItems {
			if c != nil && c.Name != nil {
				out = append(out, *c.Name)
			}
		}
	}
	return out, nil
}

// Client reports Azure inventory
type Client struct {
	creds   providers.CredentialSource
	factory Factory
	logger  *zap.Logger
}

var _ providers.Client = (*Client)(nil)

// NewClient creates an Azure inventory client
func NewClient(creds providers.CredentialSource, factory Factory, logger *zap.Logger) *Client {
	if factory == nil {
		factory = SDKFactory()
	}
	return &Client{creds: creds, factory: factory, logger: logger}
}

// Provider implements providers.Client
func (c *Client) Provider() models.Provider {
	return models.ProviderAzure
}

// FetchInventory implements providers.Client
func (c *Client) FetchInventory(ctx context.Context, principal *models.Principal) (*models.ProviderInventory, error) {
	creds, err := c.creds.GetCredentials(ctx, models.ProviderAzure, principal)
	if err != nil {
		return nil, err
	}
	if creds.Azure == nil {
		return nil, providers.NewProviderError(models.ProviderAzure, "resolve credentials", errors.New("no Azure credentials in bundle"))
	}

	apis, err := c.factory(ctx, creds.Azure)
	if err != nil {
		return nil, providers.NewProviderError(models.ProviderAzure, "create clients", err)
	}

	vms, err := apis.VMs.ListVMs(ctx)
	if err != nil {
		return nil, providers.NewProviderError(models.ProviderAzure, "list virtual machines", err)
	}

	b := providers.NewInventoryBuilder(models.ProviderAzure, providers.AzureRates)
	stopped := 0
	for _, vm := range vms {
		health := providers.Warning
		status := "stopped"
		if vm.PowerState == "running" {
			health = providers.Healthy
			status = "running"
		} else {
			stopped++
		}
		b.AddInstance(models.Instance{
			Name:     vm.Name,
			Type:     vm.Size,
			Status:   status,
			Region:   vm.Location,
			CPU:      2,
			MemoryGB: 4,
		}, health, "Virtual Machine")
	}

	if apis.Containers != nil {
		names, err := apis.Containers.ListContainers(ctx)
		if err != nil {
			c.logger.Warn("failed to list blob containers", zap.Error(err))
		}
		for _, name := range names {
			b.AddStorage(models.StorageVolume{
				Name: name,
				Type: "Blob Storage",
			}, providers.Healthy)
		}
	}

	if stopped > 0 {
		b.AddAlert("warning", "Virtual Machines", providers.StoppedAlert(stopped, "VM"))
	}
	return b.Build(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

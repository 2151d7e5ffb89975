package azure

import (
	"context"
	"errors"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/services/providers"
	"go.uber.org/zap"
)

type staticSource struct {
	creds *models.Credentials
	err   error
}

func (s staticSource) GetCredentials(context.Context, models.Provider, *models.Principal) (*models.Credentials, error) {
	return s.creds, s.err
}

type fakeVMs struct {
	vms []VM
	err error
}

func (f fakeVMs) ListVMs(context.Context) ([]VM, error) { return f.vms, f.err }

type fakeContainers struct {
	names []string
	err   error
}

func (f fakeContainers) ListContainers(context.Context) ([]string, error) { return f.names, f.err }

var azureCreds = &models.Credentials{
	Provider: models.ProviderAzure,
	Azure:    &models.AzureCredentials{SubscriptionID: "sub", UseManagedIdentity: true},
}

func TestClient_FetchInventory(t *testing.T) {
	apis := &APIs{
		VMs: fakeVMs{vms: []VM{
			{Name: "app-vm", Size: "Standard_D2s_v3", Location: "eastus", PowerState: "running"},
			{Name: "batch-vm", Size: "Standard_B2s", Location: "westus", PowerState: "deallocated"},
		}},
		Containers: fakeContainers{names: []string{"images", "backups"}},
	}
	c := NewClient(staticSource{creds: azureCreds}, func(context.Context, *models.AzureCredentials) (*APIs, error) {
		return apis, nil
	}, zap.NewNop())

	inv, err := c.FetchInventory(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, inv.Instances, 2)
	assert.Equal(t, "running", inv.Instances[0].Status)
	assert.Equal(t, "stopped", inv.Instances[1].Status)
	assert.Equal(t, "Azure", inv.Instances[0].Provider)
	assert.Len(t, inv.Storage, 2)
	assert.Empty(t, inv.Databases)

	assert.Equal(t, 3, inv.HealthyResources)
	assert.Equal(t, 1, inv.WarningResources)
	assert.Equal(t, float64(2*120+2*40), inv.MonthlyCost)
	require.Len(t, inv.Alerts, 1)
	assert.Equal(t, "1 VM instance is stopped", inv.Alerts[0].Message)
}

func TestClient_ContainerFailureKeepsVMs(t *testing.T) {
	apis := &APIs{
		VMs:        fakeVMs{vms: []VM{{Name: "vm", PowerState: "running"}}},
		Containers: fakeContainers{err: errors.New("AuthorizationFailure")},
	}
	c := NewClient(staticSource{creds: azureCreds}, func(context.Context, *models.AzureCredentials) (*APIs, error) {
		return apis, nil
	}, zap.NewNop())

	inv, err := c.FetchInventory(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, inv.Instances, 1)
	assert.Empty(t, inv.Storage)
}

func TestClient_VMFailureFailsFetch(t *testing.T) {
	apis := &APIs{VMs: fakeVMs{err: errors.New("forbidden")}}
	c := NewClient(staticSource{creds: azureCreds}, func(context.Context, *models.AzureCredentials) (*APIs, error) {
		return apis, nil
	}, zap.NewNop())

	_, err := c.FetchInventory(context.Background(), nil)
	var provErr *providers.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "list virtual machines", provErr.Operation)
}

func TestVMFromSDK(t *testing.T) {
	size := armcompute.VirtualMachineSizeTypesStandardD2SV3
	vm := &armcompute.VirtualMachine{
		Name:     to.Ptr("web"),
		Location: to.Ptr("northeurope"),
		Properties: &armcompute.VirtualMachineProperties{
			HardwareProfile: &armcompute.HardwareProfile{VMSize: &size},
			InstanceView: &armcompute.VirtualMachineInstanceView{
				Statuses: []*armcompute.InstanceViewStatus{
					{Code: to.Ptr("ProvisioningState/succeeded")},
					{Code: to.Ptr("PowerState/running")},
				},
			},
		},
	}

	got := vmFromSDK(vm)
	assert.Equal(t, VM{Name: "web", Size: "Standard_D2s_v3", Location: "northeurope", PowerState: "running"}, got)

	bare := vmFromSDK(&armcompute.VirtualMachine{Name: to.Ptr("bare")})
	assert.Equal(t, "unknown", bare.PowerState)
	assert.Equal(t, "Standard_B2s", bare.Size)
}

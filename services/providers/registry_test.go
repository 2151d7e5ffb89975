package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/multicloud-dashboard/models"
)

// MockClient is a test implementation of the Client interface
type MockClient struct {
	provider models.Provider
	inv      *models.ProviderInventory
	err      error
}

func NewMockClient(p models.Provider) *MockClient {
	return &MockClient{provider: p, inv: Fallback(p)}
}

func (m *MockClient) Provider() models.Provider { return m.provider }

func (m *MockClient) FetchInventory(context.Context, *models.Principal) (*models.ProviderInventory, error) {
	return m.inv, m.err
}

func TestRegistry_RegisterClient(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterClient(NewMockClient(models.ProviderGCP)))
	require.NoError(t, r.RegisterClient(NewMockClient(models.ProviderAWS)))

	assert.ErrorIs(t, r.RegisterClient(NewMockClient(models.ProviderAWS)), ErrProviderAlreadyRegistered)
	assert.Error(t, r.RegisterClient(nil))
	assert.Error(t, r.RegisterClient(NewMockClient(models.Provider("oracle"))))

	assert.Equal(t, 2, r.GetProviderCount())
	assert.Equal(t, []models.Provider{models.ProviderAWS, models.ProviderGCP}, r.ListProviders())
}

func TestRegistry_GetAndUnregister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterClient(NewMockClient(models.ProviderAzure)))

	c, err := r.GetClient(models.ProviderAzure)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderAzure, c.Provider())

	_, err = r.GetClient(models.ProviderAWS)
	assert.ErrorIs(t, err, ErrProviderNotFound)

	require.NoError(t, r.UnregisterClient(models.ProviderAzure))
	assert.ErrorIs(t, r.UnregisterClient(models.ProviderAzure), ErrProviderNotFound)
	assert.Zero(t, r.GetProviderCount())
}

func TestFallback(t *testing.T) {
	tests := []struct {
		provider  models.Provider
		cost      float64
		instances int
		healthy   int
		warning   int
	}{
		{models.ProviderAWS, 850, 3, 4, 1},
		{models.ProviderAzure, 620, 2, 4, 0},
		{models.ProviderGCP, 555, 2, 4, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			inv := Fallback(tt.provider)
			assert.Equal(t, tt.provider, inv.Provider)
			assert.Equal(t, tt.cost, inv.MonthlyCost)
			assert.Len(t, inv.Instances, tt.instances)
			assert.Equal(t, tt.healthy, inv.HealthyResources)
			assert.Equal(t, tt.warning, inv.WarningResources)
			assert.Len(t, inv.TopResources, 2)
		})
	}

	t.Run("copies are independent", func(t *testing.T) {
		a := Fallback(models.ProviderAWS)
		a.Instances[0].Name = "changed"
		assert.Equal(t, "web-server-1", Fallback(models.ProviderAWS).Instances[0].Name)
	})

	t.Run("unknown provider is empty", func(t *testing.T) {
		inv := Fallback(models.Provider("oracle"))
		assert.Empty(t, inv.Instances)
		assert.Zero(t, inv.MonthlyCost)
	})
}

func TestInventoryBuilder(t *testing.T) {
	b := NewInventoryBuilder(models.ProviderAWS, AWSRates)
	b.AddInstance(models.Instance{Name: "a", Region: "us-east-1"}, Healthy, "EC2 Instance")
	b.AddInstance(models.Instance{Name: "b", Region: "us-east-1"}, Warning, "EC2 Instance")
	b.AddStorage(models.StorageVolume{Name: "bucket"}, Healthy)
	b.AddDatabase(models.Database{Name: "db"}, Critical, "RDS Database", "us-east-1")
	b.AddAlert("warning", "EC2", StoppedAlert(1, "EC2"))

	inv := b.Build()
	assert.Equal(t, float64(2*150+50+200), inv.MonthlyCost)
	assert.Equal(t, 2, inv.HealthyResources)
	assert.Equal(t, 1, inv.WarningResources)
	assert.Equal(t, 1, inv.CriticalResources)
	assert.Equal(t, "AWS", inv.Instances[0].Provider)

	require.Len(t, inv.TopResources, 3)
	assert.Equal(t, "db", inv.TopResources[0].Name)
	assert.Equal(t, "a", inv.TopResources[1].Name, "equal costs keep insertion order")
	assert.Equal(t, "b", inv.TopResources[2].Name)

	require.Len(t, inv.Alerts, 1)
	assert.Equal(t, "1 EC2 instance is stopped", inv.Alerts[0].Message)
}

func TestInventoryBuilder_CapsTopResources(t *testing.T) {
	b := NewInventoryBuilder(models.ProviderGCP, GCPRates)
	for i := 0; i < 8; i++ {
		b.AddInstance(models.Instance{Name: string(rune('a' + i))}, Healthy, "Compute Engine")
	}
	assert.Len(t, b.Build().TopResources, 5)
}

func TestStoppedAlert(t *testing.T) {
	assert.Equal(t, "3 EC2 instances are stopped", StoppedAlert(3, "EC2"))
}

func TestMemoryForSize(t *testing.T) {
	tests := map[string]float64{
		"":           4,
		"t3.nano":    0.5,
		"t3.micro":   1,
		"t3.small":   2,
		"t3.medium":  4,
		"t3.large":   8,
		"m5.xlarge":  16,
		"m5.2xlarge": 16,
		"custom":     4,
	}
	for size, want := range tests {
		assert.Equal(t, want, MemoryForSize(size), size)
	}
}

package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

func TestInitDisabledIsNoop(t *testing.T) {
	tel, err := Init(context.Background(), Config{})
	require.NoError(t, err)
	require.NoError(t, tel.Shutdown(context.Background()))
	var nilTel *Telemetry
	require.NoError(t, nilTel.Shutdown(context.Background()))
}

func TestConfigDefaultsToVaultd(t *testing.T) {
	cfg := Config{Traces: true}.withDefaults()
	require.Equal(t, "vaultd", cfg.ServiceName)
	require.Equal(t, "localhost:4318", cfg.Endpoint)

	res, err := Config{ServiceName: "vaultd", Environment: "devnet", BaseToken: "WETH"}.resource()
	require.NoError(t, err)
	set := res.Set()
	name, ok := set.Value(semconv.ServiceNameKey)
	require.True(t, ok)
	require.Equal(t, "vaultd", name.AsString())
	base, ok := set.Value(attribute.Key("vault.base_token"))
	require.True(t, ok)
	require.Equal(t, "WETH", base.AsString())
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization=Bearer x , bad, =skip,tenant=vault ")
	require.Equal(t, map[string]string{"authorization": "Bearer x", "tenant": "vault"}, headers)
}

package middleware

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// unknownService is the default service name when detection fails
const unknownService = "unknown-service"

// namespaceFile is mounted into every Kubernetes pod by the service account admission.
const namespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

// detectServiceInfo resolves service name and namespace in priority order:
//  1. OTEL_SERVICE_NAME env var
//  2. the configured service name
//  3. unknownService
//
// Namespace comes from OTEL_RESOURCE_ATTRIBUTES (service.namespace), the
// Kubernetes service account file, POD_NAMESPACE, then "default".
func detectServiceInfo(configured string) (serviceName, namespace string) {
	serviceName = os.Getenv("OTEL_SERVICE_NAME")
	if serviceName == "" {
		serviceName = configured
	}
	if serviceName == "" {
		serviceName = unknownService
	}

	return serviceName, detectNamespace()
}

func detectNamespace() string {
	if attrs := os.Getenv("OTEL_RESOURCE_ATTRIBUTES"); attrs != "" {
		for _, attr := range strings.Split(attrs, ",") {
			kv := strings.SplitN(attr, "=", 2)
			if len(kv) == 2 && strings.TrimSpace(kv[0]) == "service.namespace" {
				return strings.TrimSpace(kv[1])
			}
		}
	}

	if data, err := os.ReadFile(namespaceFile); err == nil {
		if ns := strings.TrimSpace(string(data)); ns != "" {
			return ns
		}
	}

	if ns := os.Getenv("POD_NAMESPACE"); ns != "" {
		return ns
	}

	return "default"
}

// CreateResource creates an OpenTelemetry resource with detected attributes.
// On partial detection failure it returns a minimal resource together with the error.
func CreateResource(ctx context.Context, configuredService string) (*resource.Resource, error) {
	serviceName, namespace := detectServiceInfo(configuredService)

	res, err := resource.New(
		ctx,
		resource.WithFromEnv(),   // Read OTEL_* env vars if set
		resource.WithProcess(),   // Add process info (PID, executable path)
		resource.WithOS(),        // Add OS info
		resource.WithContainer(), // Add container ID if running in container
		resource.WithHost(),      // Add hostname
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceNamespaceKey.String(namespace),
		),
	)
	if err != nil {
		return resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceNamespaceKey.String(namespace),
		), fmt.Errorf("resource detection partial failure (using fallback): %w", err)
	}

	return res, nil
}

// GetServiceName extracts service name from a resource
func GetServiceName(res *resource.Resource) string {
	if res == nil {
		return unknownService
	}
	for _, attr := range res.Attributes() {
		if attr.Key == semconv.ServiceNameKey {
			return attr.Value.AsString()
		}
	}
	return unknownService
}

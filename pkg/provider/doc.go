// Package provider defines the model-provider capability contract and the
// registry that validates and serves interchangeable LLM backends.
//
// Invariants:
// - A provider is only served by the registry after its smoke test passed.
// - Validation results and the visible model list are mirrored to the store.
// - The registered provider set is read-mostly after startup; mutation
//   happens only in Initialize and RegisterModel.
//
// Usage:
//
//	reg := provider.NewRegistry(provider.RegistryConfig{...})
//	_ = reg.Initialize(ctx)
//	p, _ := reg.GetModel("default")
//	handle, _ := p.CreateSession(ctx, provider.CreateSessionOptions{...})
//	_ = handle
package provider

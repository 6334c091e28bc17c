/*
Package provider defines the resource provider contract and the registry that
dispatches lifecycle operations to providers.

A provider declares resource types; each type names the JSON Schema its
deployment properties must satisfy. The registry resolves a provider either
from deployment properties (first schema match in registration order) or from
a stored resource (by provider name):

	p, td, err := registry.FindByProperties(props)
	p, err := registry.FindByResource(ref)

Operations invoked through the registry never let a provider panic escape.
A recovered panic surfaces as *ExecutionError, and QueryResourceState folds
every failure into StateDown with diagnostics.
*/
package provider

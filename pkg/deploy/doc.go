/*
Package deploy places new resources on hosts and moves existing ones.

# Deployment

StartInstanceDeployment validates the request, installs the modules the
resource type needs, picks a storage on the target host and records the
resource as InDeployment, then returns its reference right away. The
provider does the actual provisioning in the background:

	ref, err := deployer.StartInstanceDeployment(ctx, props, groupID, hostID, userID)
	if err != nil {
		return err // nothing was created
	}
	// poll the health manager until the resource leaves InDeployment

A successful provisioning seals and stores the configuration the provider
returned, runs an availability check and arms the periodic health checks.
A failed one marks the resource Corrupt with the provider's error as
diagnostics. Either outcome is published on the event broker.

Validation failures are classified as errors.CodeInvalid, a missing group
or host as errors.CodeNotFound and an existing resource with the same
external id as errors.CodeConflict.

# Rehosting

RehostResource moves a resource to another host. The provider call is
synchronous and its error is returned to the caller unchanged. There is no
rollback: the resource stays InDeployment on failure until the next
availability check says otherwise.

# Shutdown

Background provisioning is not cancelled. Wait blocks until every
provisioning started by the deployer has finished.
*/
package deploy

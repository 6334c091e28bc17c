/*
Package manager wires the Burrow control plane together and exposes the
operations an API layer needs, each behind a permission check.

# Architecture

	┌───────────────────────── MANAGER ─────────────────────────┐
	│                                                            │
	│   DeployResource  RehostResource  GetResource  AssignRole  │
	│          │              │              │            │       │
	│          └───────── rbac.Resolver ─────┴────────────┘       │
	│                         │                                   │
	│   ┌──────────────┐ ┌─────────┐ ┌───────────────┐            │
	│   │ deploy       │ │ query   │ │ health        │◀─ tasks    │
	│   │ Deployer     │ │ Service │ │ Manager       │            │
	│   └──────┬───────┘ └────┬────┘ └──────┬────────┘            │
	│          └──── provider.Registry ─────┘                     │
	│                         │                                   │
	│   storage.BoltStore   events.Broker   reconciler            │
	└────────────────────────────────────────────────────────────┘

The manager owns the datastore handle, the task scheduler, the event
broker and the re-scan loop. NewManager opens everything; Start begins the
background loops; Shutdown stops them, waits for running deployments and
closes the store.

# Outcomes

Every operation returns an error classified by pkg/errors so a transport
layer can map it without knowing the core:

	errors.CodeNotFound   the resource, group, host or role does not exist
	errors.CodeForbidden  the user lacks the permission
	errors.CodeConflict   a resource with that external id already exists
	errors.CodeInvalid    the request does not validate

# Seeding

Hosts, storages, resource groups, roles, user groups and cluster or group
role assignments are created through Seed from a YAML manifest. Seeding is
idempotent and bypasses permission checks; it is meant for bootstrap.
*/
package manager

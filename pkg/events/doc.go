/*
Package events is Burrow's in-process event bus.

Lifecycle components publish what happened to resources; listeners such as
the CLI's watch mode or a notification bridge subscribe:

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe(events.EventResourceHealthChanged)
	for e := range sub {
		fmt.Println(e.ResourceID, e.Metadata["status"])
	}

Event types:

	resource.deployed           provisioning finished
	resource.deployment_failed  provisioning failed, resource is corrupt
	resource.health_changed     a check moved to a new status
	resource.rehosted           resource moved to another host storage
	resource.renamed            external id changed
	role.assigned               a role assignment was created

Delivery is best effort. Publish never blocks; a full queue or subscriber
buffer drops the event.
*/
package events

/*
Package event provides the pub/sub bus that carries session notifications
to transports.

# Event Types

  - window.need: a client display should be opened for a workspace
  - transcript.append: text for a workspace transcript (role user, llm or error)
  - session.created: a session was created for a workspace
  - turn.completed: a turn finished, with its error kind on failure

# Delivery

In-process subscribers are called directly. PublishSync calls them in the
publishing goroutine, which the session registry relies on to keep a
turn's notifications ordered. Every event is also mirrored as JSON onto
the watermill gochannel topic Topic; transports consume it with Messages
and Decode:

	msgs, err := bus.Messages(ctx)
	if err != nil {
		return err
	}
	for msg := range msgs {
		env, err := event.Decode(msg)
		msg.Ack()
		...
	}

The gochannel is configured to wait for each subscriber's ack before the
next message, so mirrored events also arrive in publish order.
*/
package event

// Package bulkmail provides a bulk mail dispatcher that spreads outbound
// messages across a pool of SMTP relay credentials, throttling each relay
// and automatically retiring relays the provider has paused.
//
// The core is a relay-rotation state machine: relays are selected round
// robin, each allowed a bounded burst of sends before it is skipped, with
// the whole pool's counters reset collectively once every relay has hit
// its threshold. Relays that return a provider-side "sending paused"
// response are disabled for the remainder of the run. An account-level
// status oracle gates every acquisition.
//
// # Basic Usage
//
//	client, err := bulkmail.New(bulkmail.DefaultConfig(),
//		bulkmail.WithRelays([]bulkmail.Relay{
//			{Host: "email-smtp.us-east-1.amazonaws.com", Port: 587,
//				Username: "AKIA...", Password: "...", Region: "us-east-1"},
//		}),
//		bulkmail.WithTransport(smtp.NewTransport()),
//		bulkmail.WithMessage(bulkmail.Message{
//			From:     "sender@example.com",
//			Subject:  "Hello",
//			TextBody: "Hello there",
//		}),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	report, err := client.Run(context.Background(), recipients)
//
// # Features
//
//   - Round-robin relay rotation with a per-relay burst threshold
//   - Provider-status gate consulted before every acquisition (fail closed)
//   - Automatic disablement of provider-paused relays
//   - Bounded worker pool with exactly-once dispatch per recipient
//   - Live progress snapshots for concurrent display loops
//   - Optional global rate limiting on top of the per-relay throttle
//   - Structured logging and OpenTelemetry tracing
//   - Context-aware operations
package bulkmail

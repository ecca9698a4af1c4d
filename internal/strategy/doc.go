/*
Strategy drives one trading session around a scheduled announcement.

# Module
  - session loop: one goroutine merges the scheduler timer with the inbound bus queue
  - engine: entry pacing and repricing, order lifecycle dispatch, manual triggers
  - hedger: timed exposure reduction with escalation to an operator
  - risk engine: validates every order intent against alias and session limits

# Source
 1. market data, order lifecycle events and triggers from the feed bridge
 2. order lifecycle events from the paper gateway
 3. scheduled actions planned at session start

# Produce
  - order requests to the order usecase
  - journal entries and operator alerts

# Sharded
  - session id + alias
*/
package strategy

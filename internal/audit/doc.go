// Package audit records state-changing commands in SQLite.
//
// Every surface that executes commands (REST, MQTT) stamps the request
// context with an actor via WithActor; the command service writes one
// entry per successful mutation. The trail answers "who turned the
// kitchen down at 3am" without scraping logs.
package audit

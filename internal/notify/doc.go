// Package notify decouples state-changing command handlers from the
// external surfaces that announce those changes.
//
// Command handlers enqueue status notifications and return immediately;
// a background consumer per registered publisher drains the queue and
// delivers to one external system (MQTT broker, KNX bus). Queue channels
// are bounded per scope. When a channel is full the oldest item is
// dropped in favour of the newest, since every queued item is a status
// snapshot that later items supersede. One publisher's failure never
// blocks another publisher or an enqueue caller.
package notify

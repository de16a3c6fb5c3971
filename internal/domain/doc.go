// Package domain defines the core domain types and interfaces.
//
// Integration records, provider token grants, the token error taxonomy and the
// consumer-side interfaces for persistence and sessions. No implementation code.
package domain

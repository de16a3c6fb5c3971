// Package app provides the application service layer.
//
// Orchestrates the credential use cases: the provider-scoped token store
// (save/get/has/revoke over encrypted integration records) and the OAuth
// callback pipeline that feeds it. Depends on domain interfaces, not concrete
// implementations.
package app

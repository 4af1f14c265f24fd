// Package graph is a minimal read-only client for the Microsoft Graph mail
// API.
//
// The access token travels in the request context, placed there by the auth
// middleware after token resolution. The client never stores credentials and
// never writes token material into errors or logs.
package graph

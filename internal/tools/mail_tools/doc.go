// Package mail_tools provides MCP tools for reading Outlook mailboxes via
// Microsoft Graph.
//
// All tools are read-only. They assume the auth middleware already resolved
// the caller's access token into the request context; without it every Graph
// call fails closed.
package mail_tools

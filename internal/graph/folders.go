package graph

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mailgate/mailgate/internal/logging"
)

// wellKnownFolders maps friendly folder names to Graph message collection
// endpoints.
var wellKnownFolders = map[string]string{
	"inbox":   "me/mailFolders/inbox/messages",
	"drafts":  "me/mailFolders/drafts/messages",
	"sent":    "me/mailFolders/sentItems/messages",
	"deleted": "me/mailFolders/deletedItems/messages",
	"junk":    "me/mailFolders/junkemail/messages",
	"archive": "me/mailFolders/archive/messages",
}

// inboxEndpoint is the fallback when folder resolution fails.
const inboxEndpoint = "me/mailFolders/inbox/messages"

// ResolveFolder maps a folder name to its message collection endpoint.
// Well-known names resolve locally. Anything else is looked up by display
// name, and an unknown or unresolvable folder falls back to the inbox with
// a warning rather than failing the request.
func (c *Client) ResolveFolder(ctx context.Context, folderName string) string {
	if folderName == "" {
		return inboxEndpoint
	}

	if endpoint, ok := wellKnownFolders[strings.ToLower(folderName)]; ok {
		return endpoint
	}

	params := url.Values{}
	params.Set("$filter", fmt.Sprintf("displayName eq '%s'", escapeODataString(folderName)))

	var resp FolderListResponse
	if err := c.Get(ctx, "me/mailFolders", params, &resp); err != nil {
		c.logger.Warn("folder lookup failed, using inbox",
			logging.Folder(folderName), logging.Err(err))
		return inboxEndpoint
	}
	if len(resp.Value) == 0 {
		c.logger.Warn("folder not found, using inbox", logging.Folder(folderName))
		return inboxEndpoint
	}

	return fmt.Sprintf("me/mailFolders/%s/messages", resp.Value[0].ID)
}

// escapeODataString doubles single quotes per OData string literal rules.
func escapeODataString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

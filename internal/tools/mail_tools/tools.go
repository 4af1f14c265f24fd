package mail_tools

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mailgate/mailgate/internal/graph"
	"github.com/mailgate/mailgate/internal/server"
	"github.com/mailgate/mailgate/internal/token"
)

const (
	defaultCount = 10
	maxCount     = 50
)

// getCountFromArgs extracts and clamps the count argument.
func getCountFromArgs(args map[string]interface{}) int {
	count := defaultCount
	if countVal, ok := args["count"].(float64); ok {
		count = int(countVal)
	}
	if count < 1 {
		count = 1
	}
	if count > maxCount {
		count = maxCount
	}
	return count
}

func getStringFromArgs(args map[string]interface{}, key string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return ""
}

func getBoolFromArgs(args map[string]interface{}, key string) bool {
	val, ok := args[key].(bool)
	return ok && val
}

// RegisterMailTools registers the mailbox tools with the MCP server.
func RegisterMailTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	listTool := mcp.NewTool("list_emails",
		mcp.WithDescription("List emails from a folder"),
		mcp.WithString("folder",
			mcp.Description("Folder name (inbox, sent, drafts, deleted, junk, archive, or custom folder name). Default: inbox"),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of emails to retrieve (default: 10, max: 50)"),
		),
	)
	s.AddTool(listTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListEmails(ctx, request, sc)
	})

	searchTool := mcp.NewTool("search_emails",
		mcp.WithDescription("Search emails with filters"),
		mcp.WithString("query",
			mcp.Description("General search text"),
		),
		mcp.WithString("folder",
			mcp.Description("Folder to search (default: inbox)"),
		),
		mcp.WithString("from_address",
			mcp.Description("Filter by sender email or name"),
		),
		mcp.WithString("subject",
			mcp.Description("Filter by subject"),
		),
		mcp.WithBoolean("has_attachments",
			mcp.Description("Only emails with attachments"),
		),
		mcp.WithBoolean("unread_only",
			mcp.Description("Only unread emails"),
		),
		mcp.WithNumber("count",
			mcp.Description("Max results (default: 10, max: 50)"),
		),
	)
	s.AddTool(searchTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleSearchEmails(ctx, request, sc)
	})

	readTool := mcp.NewTool("read_email",
		mcp.WithDescription("Read full email content by ID"),
		mcp.WithString("email_id",
			mcp.Required(),
			mcp.Description("Email ID from list_emails or search_emails results"),
		),
	)
	s.AddTool(readTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleReadEmail(ctx, request, sc)
	})

	return nil
}

func handleListEmails(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	folder := getStringFromArgs(args, "folder")
	if folder == "" {
		folder = "inbox"
	}
	count := getCountFromArgs(args)

	endpoint := sc.Graph().ResolveFolder(ctx, folder)

	params := url.Values{}
	params.Set("$top", fmt.Sprintf("%d", count))
	params.Set("$orderby", "receivedDateTime desc")
	params.Set("$select", sc.Config().EmailListFields)

	emails, err := sc.Graph().GetPaginated(ctx, endpoint, params, count)
	if err != nil {
		return mcp.NewToolResultError(graphErrorMessage(err, "Failed to list emails")), nil
	}

	if len(emails) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No emails found in %s.", folder)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d emails in %s:\n\n", len(emails), folder)
	writeMessageList(&sb, emails)

	return mcp.NewToolResultText(sb.String()), nil
}

func handleSearchEmails(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	folder := getStringFromArgs(args, "folder")
	if folder == "" {
		folder = "inbox"
	}

	searchParams := graph.SearchParams{
		Query:          getStringFromArgs(args, "query"),
		FromAddress:    getStringFromArgs(args, "from_address"),
		Subject:        getStringFromArgs(args, "subject"),
		HasAttachments: getBoolFromArgs(args, "has_attachments"),
		UnreadOnly:     getBoolFromArgs(args, "unread_only"),
		Count:          getCountFromArgs(args),
	}

	endpoint := sc.Graph().ResolveFolder(ctx, folder)

	emails, strategy, err := sc.Search().Search(ctx, endpoint, searchParams)
	if err != nil {
		return mcp.NewToolResultError(graphErrorMessage(err, "Failed to search emails")), nil
	}

	if len(emails) == 0 {
		return mcp.NewToolResultText("No emails found matching your search criteria."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d emails (via %s):\n\n", len(emails), strategy)
	writeMessageList(&sb, emails)

	return mcp.NewToolResultText(sb.String()), nil
}

func handleReadEmail(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	emailID := getStringFromArgs(args, "email_id")
	if emailID == "" {
		return mcp.NewToolResultError("Email ID is required."), nil
	}

	params := url.Values{}
	params.Set("$select", sc.Config().EmailDetailFields)

	var email graph.Message
	if err := sc.Graph().Get(ctx, "me/messages/"+url.PathEscape(emailID), params, &email); err != nil {
		var upstream *graph.UpstreamError
		if errors.As(err, &upstream) && upstream.Status == 404 {
			return mcp.NewToolResultError("Invalid email ID or email not found in your mailbox."), nil
		}
		return mcp.NewToolResultError(graphErrorMessage(err, "Failed to read email")), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\n", graph.FormatAddress(email.From))
	fmt.Fprintf(&sb, "To: %s\n", graph.FormatRecipients(email.ToRecipients))
	if cc := graph.FormatRecipients(email.CcRecipients); cc != "None" {
		fmt.Fprintf(&sb, "CC: %s\n", cc)
	}
	if bcc := graph.FormatRecipients(email.BccRecipients); bcc != "None" {
		fmt.Fprintf(&sb, "BCC: %s\n", bcc)
	}

	subject := email.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	importance := email.Importance
	if importance == "" {
		importance = "normal"
	}
	hasAttachments := "No"
	if email.HasAttachments {
		hasAttachments = "Yes"
	}

	fmt.Fprintf(&sb, "Subject: %s\n", subject)
	fmt.Fprintf(&sb, "Date: %s\n", graph.FormatDate(email.ReceivedDateTime))
	fmt.Fprintf(&sb, "Importance: %s\n", importance)
	fmt.Fprintf(&sb, "Has Attachments: %s\n", hasAttachments)
	sb.WriteString("\n")
	sb.WriteString(graph.Body(&email))

	return mcp.NewToolResultText(sb.String()), nil
}

// writeMessageList renders a numbered message summary list.
func writeMessageList(sb *strings.Builder, emails []graph.Message) {
	for i, email := range emails {
		unread := ""
		if !email.IsRead {
			unread = "[UNREAD] "
		}
		subject := email.Subject
		if subject == "" {
			subject = "(no subject)"
		}

		fmt.Fprintf(sb, "%d. %s%s - From: %s\n", i+1, unread, graph.FormatDate(email.ReceivedDateTime), graph.FormatAddress(email.From))
		fmt.Fprintf(sb, "   Subject: %s\n", subject)
		fmt.Fprintf(sb, "   ID: %s\n\n", email.ID)
	}
}

// graphErrorMessage maps Graph client errors to user-facing text without
// leaking internals.
func graphErrorMessage(err error, fallback string) string {
	var upstream *graph.UpstreamError
	switch {
	case errors.Is(err, token.ErrReauthNeeded):
		return "Session expired. Please reconnect your Outlook account."
	case errors.Is(err, graph.ErrAuthMissing):
		return "Microsoft authentication required. Please connect your Outlook account."
	case errors.As(err, &upstream):
		return fmt.Sprintf("Microsoft Graph API error: %d", upstream.Status)
	default:
		return fallback + "."
	}
}

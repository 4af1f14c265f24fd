package graph

// EmailAddress is a Graph API emailAddress object.
type EmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Recipient wraps an email address the way Graph message resources do.
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// ItemBody is a Graph API itemBody object.
type ItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// Message is the subset of a Graph message resource the mail tools use.
// Which fields are populated depends on the $select projection of the
// request.
type Message struct {
	ID               string      `json:"id"`
	Subject          string      `json:"subject"`
	From             *Recipient  `json:"from"`
	ToRecipients     []Recipient `json:"toRecipients"`
	CcRecipients     []Recipient `json:"ccRecipients"`
	BccRecipients    []Recipient `json:"bccRecipients"`
	ReceivedDateTime string      `json:"receivedDateTime"`
	BodyPreview      string      `json:"bodyPreview"`
	Body             *ItemBody   `json:"body"`
	HasAttachments   bool        `json:"hasAttachments"`
	Importance       string      `json:"importance"`
	IsRead           bool        `json:"isRead"`
}

// ListResponse is a Graph collection page.
type ListResponse struct {
	Value    []Message `json:"value"`
	NextLink string    `json:"@odata.nextLink"`
}

// MailFolder is the subset of a Graph mailFolder resource used for custom
// folder resolution.
type MailFolder struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// FolderListResponse is a Graph mailFolders collection page.
type FolderListResponse struct {
	Value []MailFolder `json:"value"`
}

package mail

// Attachment wraps a non-text MIME part. The data honors a read-once
// contract: the first Read returns the content, every subsequent Read
// returns nil. This mirrors a single-consumption stream so the attachment
// can be handed directly to streaming multipart upload clients.
type Attachment struct {
	ContentType string
	Filename    string

	data []byte
	read bool
}

// Read returns the attachment data on the first call and nil afterwards.
func (a *Attachment) Read() []byte {
	if a.read {
		return nil
	}
	a.read = true
	return a.data
}

// Size reports the content length without consuming the data.
func (a *Attachment) Size() int {
	return len(a.data)
}

// Attached reports whether a filename could be derived for the part. Parts
// without one are not treated as attachments.
func (a *Attachment) Attached() bool {
	return a.Filename != ""
}

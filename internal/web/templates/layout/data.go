// Package layout holds the document shell shared by every page.
package layout

import "github.com/apexfest/checkin/internal/services/auth"

// FlashMessage is a one-shot notice carried across a redirect
type FlashMessage struct {
	Type    string // success, error, info
	Message string
}

// PageData is common to every page
type PageData struct {
	Title   string
	Session *auth.Session
	Flash   *FlashMessage
}

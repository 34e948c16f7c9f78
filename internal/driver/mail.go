package driver

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// parseMeta extracts the message id and date from raw RFC 5322 bytes.
// Messages without a usable Message-Id header get a deterministic
// content-hash id, so the same bytes map to the same identity on every
// run and on both sides of an account.
func parseMeta(raw []byte) (id string, date time.Time) {
	ent, err := message.Read(bytes.NewReader(raw))
	if err != nil {
		return hashID(raw), time.Time{}
	}

	header := mail.Header{Header: ent.Header}
	if d, err := header.Date(); err == nil {
		date = d
	}
	if msgID, err := header.MessageID(); err == nil && msgID != "" {
		return msgID, date
	}
	return hashID(raw), date
}

func hashID(raw []byte) string {
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%x@content-hash.invalid", sum[:16])
}

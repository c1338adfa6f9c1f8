package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/storage"

	"github.com/asiradnan/saml/internal/db/models"
	"github.com/asiradnan/saml/internal/identity"
)

// Store is the global session store instance.
var Store *session.Store

// Record represents the per-browser-session state. Besides the logged-in
// user it holds the last attribute bag received from the SAML engine, the
// resolved name identifier, and the Processed guard that keeps attribute
// reconciliation from running more than once per authentication event.
type Record struct {
	User models.User

	// Attributes is the raw attribute bag from the last assertion.
	Attributes identity.Bag
	// NameID is the SAML name identifier the partner asserted.
	NameID string
	// SessionIndex is the assertion's session index, when present.
	SessionIndex string
	// Processed is true once incoming attributes have been reconciled into
	// the user record for this session.
	Processed bool
}

// Write writes the session record for the given session ID with an expiration duration.
func (s *Record) Write(sessionID string, exp time.Duration) error {
	out, err := json.Marshal(s)
	if err != nil {
		return err
	}

	return Store.Storage.Set(sessionID, out, exp)
}

// Read reads the session record for the given session ID.
func (s *Record) Read(sessionID string) error {
	byteData, err := Store.Storage.Get(sessionID)
	if err != nil {
		return err
	}

	return json.Unmarshal(byteData, s)
}

// Delete removes the session record for the given session ID.
func Delete(sessionID string) error {
	return Store.Storage.Delete(sessionID)
}

// Init initializes the session store with the provided storage backend.
func Init(storage storage.Storage) {
	if storage == nil {
		panic("storage is nil")
	}

	Store = session.New(session.Config{
		Storage: storage,
	})
}

// GenerateSessionID generates a new secure random session ID.
func GenerateSessionID() (string, error) {
	// 32 bytes = 256 bits
	b := make([]byte, 32) //nolint:mnd
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
